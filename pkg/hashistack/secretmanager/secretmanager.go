package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Enabled reports whether a Vault address is configured in the environment.
func Enabled() bool {
	return os.Getenv("VAULT_ADDR") != ""
}

// ProvideVault builds a client from VAULT_ADDR, VAULT_TOKEN and the other standard VAULT_* variables.
func ProvideVault() (*vault.Client, error) {
	return vault.New(vault.WithEnvironment())
}

// Options returns the secret manager module when Vault is configured.
func Options() fx.Option {
	if !Enabled() {
		return fx.Options()
	}
	return Module
}
