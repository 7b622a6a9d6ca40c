package compliance

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Finding struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Assessment is the JSON document returned by both the local rules and the AI advisor.
type Assessment struct {
	Project  string    `json:"project"`
	Counts   Counts    `json:"counts"`
	Findings []Finding `json:"findings"`
	Advice   string    `json:"advice"`
}

type rule struct {
	re             *regexp.Regexp
	severity       string
	title          string
	recommendation string
}

// Checked in order; the first match wins.
var rules = []rule{
	// broken
	{regexp.MustCompile(`(?i)\bmd[245]\b`), "critical", "Broken hash function", "Replace with SHA-256 or stronger."},
	{regexp.MustCompile(`(?i)\bsha-?1\b`), "critical", "Broken hash function", "Replace with SHA-256 or stronger."},
	{regexp.MustCompile(`(?i)\brc[24]\b|arcfour`), "critical", "Broken cipher", "Replace with AES-GCM or ChaCha20-Poly1305."},
	{regexp.MustCompile(`(?i)3des|tdea|desede|triple-?des`), "critical", "Deprecated block cipher", "Replace with AES-256."},
	{regexp.MustCompile(`(?i)\bdes\b`), "critical", "Broken cipher", "Replace with AES-256."},
	// post-quantum schemes, checked before the classical families they share letters with
	{regexp.MustCompile(`(?i)ml-?kem|kyber|ml-?dsa|dilithium|slh-?dsa|sphincs|falcon|fn-?dsa`), "low", "Post-quantum algorithm", "Keep; track the final parameter set recommendations."},
	// quantum vulnerable public key
	{regexp.MustCompile(`(?i)\brsa|\bdsa\b|ecdsa|ecdh|\becdhe?\b|\bdh\b|diffie|x25519|x448|ed25519|ed448|\bec\b|secp\d+|prime256`), "high", "Quantum-vulnerable public key algorithm", "Plan migration to ML-KEM / ML-DSA or a hybrid scheme."},
	// reduced security margin against Grover
	{regexp.MustCompile(`(?i)aes-?128|\b(sha-?224|sha3-224)\b|hmac-?sha-?224`), "medium", "Reduced post-quantum security margin", "Prefer 256-bit keys or outputs."},
	{regexp.MustCompile(`(?i)aes-?(192|256)|chacha20|sha-?(256|384|512)|sha3|shake|hmac|pbkdf2|argon2|scrypt|hkdf`), "low", "Quantum-resistant symmetric primitive", "No action required."},
}

// Assess classifies assets with the built-in rule set. Assets no rule knows are skipped.
func Assess(project string, assets []CryptoAsset) Assessment {
	out := Assessment{Project: project, Findings: make([]Finding, 0, len(assets))}
	seen := map[string]bool{}
	for _, a := range assets {
		key := strings.ToLower(a.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		for _, r := range rules {
			if !r.re.MatchString(a.Name) {
				continue
			}
			out.Findings = append(out.Findings, Finding{
				Title:          r.title,
				Severity:       r.severity,
				Summary:        fmt.Sprintf("%s detected", a.Name),
				Recommendation: r.recommendation,
			})
			switch r.severity {
			case "critical":
				out.Counts.Critical++
			case "high":
				out.Counts.High++
			case "medium":
				out.Counts.Medium++
			case "low":
				out.Counts.Low++
			}
			break
		}
	}
	out.Counts.Total = out.Counts.Critical + out.Counts.High + out.Counts.Medium + out.Counts.Low
	switch {
	case out.Counts.Critical > 0:
		out.Advice = "Remove broken algorithms first, then plan the post-quantum migration."
	case out.Counts.High > 0:
		out.Advice = "Inventory key exchange and signatures and plan a post-quantum migration."
	default:
		out.Advice = "No urgent findings."
	}
	return out
}

func (a Assessment) JSON() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal assessment: %w", err)
	}
	return string(b), nil
}
