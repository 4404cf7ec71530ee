package network

import (
	"fmt"
	"os"

	"github.com/bnema/touchbridge/internal/config"
	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the SHA256 fingerprint of a public key
func Fingerprint(pub ssh.PublicKey) string {
	return ssh.FingerprintSHA256(pub)
}

// FingerprintFile reads an authorized_keys style public key file
func FingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return "", fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return Fingerprint(pub), nil
}

// GrantKey allows the key in the public key file to reach the helper over SSH
func GrantKey(pubKeyPath string) (string, error) {
	fingerprint, err := FingerprintFile(pubKeyPath)
	if err != nil {
		return "", err
	}
	if err := config.GrantSSHKey(fingerprint); err != nil {
		return "", err
	}
	return fingerprint, nil
}

// RevokeKey removes a grant by fingerprint
func RevokeKey(fingerprint string) error {
	return config.RevokeSSHKey(fingerprint)
}

// IsGranted reports whether fingerprint may open SSH sessions
func IsGranted(fingerprint string) bool {
	return config.IsSSHKeyGranted(fingerprint)
}
