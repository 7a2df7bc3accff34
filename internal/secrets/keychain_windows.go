//go:build windows

package secrets

import (
	"fmt"

	"github.com/danieljoos/wincred"
)

// WindowsKeychain stores secrets in the Windows Credential Manager.
// Adapted directly from the teacher's integration.Keychain, renamed
// for this package's narrower Store contract.
type WindowsKeychain struct {
	prefix string
}

// NewKeychain returns the Store implementation used on this platform.
func NewKeychain(prefix string) Store {
	return &WindowsKeychain{prefix: prefix}
}

func (k *WindowsKeychain) target(id string) string {
	return fmt.Sprintf("%s:%s", k.prefix, id)
}

func (k *WindowsKeychain) Get(id string) (string, bool, error) {
	cred, err := wincred.GetGenericCredential(k.target(id))
	if err != nil {
		return "", false, nil
	}
	return string(cred.CredentialBlob), true, nil
}

func (k *WindowsKeychain) Set(id, value string) error {
	cred := wincred.NewGenericCredential(k.target(id))
	cred.CredentialBlob = []byte(value)
	cred.Persist = wincred.PersistLocalMachine
	return cred.Write()
}

func (k *WindowsKeychain) Delete(id string) error {
	cred, err := wincred.GetGenericCredential(k.target(id))
	if err != nil {
		return nil
	}
	return cred.Delete()
}
