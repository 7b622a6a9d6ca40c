package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cbomkit/internal/domain/ai"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/memory"
)

const project = "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78"

func store(t *testing.T, names ...string) *memory.CBOMRepository {
	t.Helper()
	comps := []cyclonedx.Component{{BOMRef: "lib", Name: "bcprov", Type: cyclonedx.ComponentTypeLibrary}}
	for i, n := range names {
		comps = append(comps, cyclonedx.Component{
			BOMRef: fmt.Sprintf("crypto-%d", i),
			Name:   n,
			Type:   cyclonedx.ComponentType(componentTypeCryptoAsset),
		})
	}
	bom := cyclonedx.NewBOM()
	bom.Components = &comps
	payload, err := cbom.New(bom).JSON()
	require.NoError(t, err)

	repo := memory.NewCBOMRepository()
	require.NoError(t, repo.Save(context.Background(), &cbom.ReadModel{ID: uuid.New(), ProjectIdentifier: project, Bom: payload}))
	return repo
}

type fakeAdvisor struct {
	answer string
	err    error
	got    string
}

func (f *fakeAdvisor) Assess(_ context.Context, _, inventory string) (string, error) {
	f.got = inventory
	return f.answer, f.err
}

func TestAssetsSkipsNonCryptoComponents(t *testing.T) {
	svc := &Service{CBOMs: store(t, "RSA-2048", "AES-256-GCM")}
	assets, err := svc.Assets(context.Background(), project)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "RSA-2048", assets[0].Name)
	assert.Equal(t, "AES-256-GCM", assets[1].Name)

	_, err = svc.Assets(context.Background(), "unknown")
	assert.ErrorIs(t, err, cbom.ErrNotFound)
}

func TestAssessWithRules(t *testing.T) {
	tests := []struct {
		name     string
		severity string
	}{
		{"MD5", "critical"},
		{"SHA-1", "critical"},
		{"3DES", "critical"},
		{"RSA-2048", "high"},
		{"ECDSA-P256", "high"},
		{"AES-128-GCM", "medium"},
		{"AES-256-GCM", "low"},
		{"ML-KEM-768", "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(project, []CryptoAsset{{Name: tt.name}})
			require.Len(t, a.Findings, 1)
			assert.Equal(t, tt.severity, a.Findings[0].Severity)
			assert.Equal(t, 1, a.Counts.Total)
		})
	}
}

func TestAssessUsesAdvisor(t *testing.T) {
	advisor := &fakeAdvisor{answer: `{"advice":"ok"}`}
	svc := &Service{CBOMs: store(t, "RSA-2048"), Advisor: advisor}

	out, err := svc.Assess(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, `{"advice":"ok"}`, out)
	assert.Contains(t, advisor.got, "RSA-2048")
}

func TestAssessFallsBackOnQuota(t *testing.T) {
	advisor := &fakeAdvisor{err: fmt.Errorf("openai: %w", ai.ErrQuotaExceeded)}
	svc := &Service{CBOMs: store(t, "RSA-2048", "MD5"), Advisor: advisor}

	out, err := svc.Assess(context.Background(), project)
	require.NoError(t, err)
	var a Assessment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, 1, a.Counts.Critical)
	assert.Equal(t, 1, a.Counts.High)
	assert.Equal(t, 2, a.Counts.Total)
}

func TestAssessPropagatesAdvisorErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := &Service{CBOMs: store(t, "RSA-2048"), Advisor: &fakeAdvisor{err: boom}}
	_, err := svc.Assess(context.Background(), project)
	assert.ErrorIs(t, err, boom)
}
