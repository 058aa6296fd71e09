// SPDX-License-Identifier: MPL-2.0

package secrets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"cibuild-cli/internal/issue"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
)

// maxKeySize bounds the encrypted key download; a private key blob larger
// than this is not a key.
const maxKeySize = 1 << 20

// Bootstrap fetches, decrypts, and temporarily installs the private-test
// SSH identity.
type Bootstrap struct {
	// Material is the decryption key pair from the environment.
	Material Material
	// KeyURL is where the encrypted key blob lives.
	KeyURL string
	// IdentityPath is the SSH identity file path. Empty means
	// ~/.ssh/id_rsa, the fixed path the test corpus remote expects.
	IdentityPath string
	// Client is the HTTP client for the key download (nil means
	// http.DefaultClient).
	Client *http.Client

	Logger *log.Logger
}

// identityPath resolves the identity file location.
func (b *Bootstrap) identityPath() (string, error) {
	if b.IdentityPath != "" {
		return b.IdentityPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "id_rsa"), nil
}

// WithIdentity fetches and decrypts the private key, installs it at the
// identity path with restrictive permissions, runs fn, and removes the key
// again. Removal happens on every exit path: fn failure, panic, or
// cancellation cannot leave the decrypted key on disk.
func (b *Bootstrap) WithIdentity(ctx context.Context, fn func(identityPath string) error) error {
	blob, err := b.fetch(ctx)
	if err != nil {
		return issue.WrapResource(err, "fetch encrypted test key", b.KeyURL)
	}

	key, err := b.Material.Decrypt(blob)
	if err != nil {
		return issue.Wrap(err, "decrypt test key").
			Suggest("Check that the encrypted key/iv environment variables are intact")
	}

	// A malformed decryption result means wrong key material, not a wrong
	// remote file; fail before writing anything to disk.
	if _, err := ssh.ParseRawPrivateKey(key); err != nil {
		return issue.Wrap(err, "validate decrypted test key").
			Suggest("The key material likely does not match the encrypted blob")
	}

	path, err := b.identityPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return issue.WrapResource(err, "prepare ssh directory", filepath.Dir(path))
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return issue.WrapResource(err, "install ssh identity", path)
	}

	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger().Error("failed to remove decrypted key", "path", path, "err", rmErr)
		}
	}()

	return fn(path)
}

// CloneTests clones the private test corpus over SSH using the installed
// identity, bypassing host-key prompts on throwaway CI hosts.
func CloneTests(ctx context.Context, repoURL, identityPath, destDir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, destDir)
	cmd.Env = append(os.Environ(),
		"GIT_SSH_COMMAND=ssh -i "+identityPath+" -o StrictHostKeyChecking=no -o IdentitiesOnly=yes")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return issue.WrapResource(err, "clone private test corpus", repoURL).
			Suggest("Verify the deploy key has read access to the repository")
	}
	return nil
}

// fetch downloads the encrypted key blob.
func (b *Bootstrap) fetch(ctx context.Context) ([]byte, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.KeyURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxKeySize))
}

func (b *Bootstrap) logger() *log.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return log.Default()
}
