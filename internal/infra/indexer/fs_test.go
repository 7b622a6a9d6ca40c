package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

func touch(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
}

func javaIndexer() *FS {
	return New(Spec{Language: scanning.LanguageJava, BuildFiles: []string{"pom.xml", "build.gradle"}, Extensions: []string{"java"}})
}

func TestIndexAssignsFilesToClosestModule(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pom.xml")
	touch(t, root, "src/main/java/App.java")
	touch(t, root, "core/pom.xml")
	touch(t, root, "core/src/main/java/Cipher.java")
	touch(t, root, "core/src/main/java/Digest.java")
	touch(t, root, "core/target/generated/Gen.java")
	touch(t, root, ".git/objects/Skip.java")
	touch(t, root, "README.md")

	modules, err := javaIndexer().Index(context.Background(), root, "")
	require.NoError(t, err)
	require.Len(t, modules, 2)

	assert.Equal(t, scanning.Module{Name: "root", Dir: ".", Files: []string{"src/main/java/App.java"}}, modules[0])
	assert.Equal(t, "core", modules[1].Name)
	assert.Equal(t, "core", modules[1].Dir)
	assert.Equal(t, []string{"core/src/main/java/Cipher.java", "core/src/main/java/Digest.java"}, modules[1].Files)
}

func TestIndexWithinFolder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "pom.xml")
	touch(t, root, "src/Main.java")
	touch(t, root, "libs/crypto/Aes.java")

	modules, err := javaIndexer().Index(context.Background(), root, "libs/crypto")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "libs/crypto", modules[0].Dir)
	assert.Equal(t, []string{"libs/crypto/Aes.java"}, modules[0].Files)
}

func TestIndexNoSources(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "setup.py")

	modules, err := javaIndexer().Index(context.Background(), root, "")
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestIndexMissingFolder(t *testing.T) {
	_, err := javaIndexer().Index(context.Background(), t.TempDir(), "does/not/exist")
	assert.ErrorIs(t, err, scanning.ErrNoProjectDirectory)
}
