// Package networks resolves named network configurations into ready-to-use
// deployment targets. Resolution is pure: it reads configuration and the
// process environment but performs no network calls.
package networks

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/shipyard/internal/config"
	"github.com/pendergraft/shipyard/internal/validation"
)

// ErrorKind classifies configuration failures.
type ErrorKind string

const (
	KindUnknownNetwork ErrorKind = "unknown_network"
	KindMissingKey     ErrorKind = "missing_key"
	KindMalformedKey   ErrorKind = "malformed_key"
	KindMissingRPCURL  ErrorKind = "missing_rpc_url"
	KindInvalidChainID ErrorKind = "invalid_chain_id"
)

// ConfigError is returned when a network cannot be resolved. Configuration
// errors are fatal and occur before any network I/O.
type ConfigError struct {
	Kind    ErrorKind
	Network string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("network %q: %s: %s", e.Network, e.Kind, e.Detail)
	}
	return fmt.Sprintf("network %q: %s", e.Network, e.Kind)
}

// Is matches ConfigErrors by kind, ignoring network and detail.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Network == "" || t.Network == e.Network)
}

// Network is a fully resolved deployment target. It is immutable once
// resolved and safe to share across the broadcaster and verifier.
type Network struct {
	Name           string
	RPCURL         string
	ChainID        int64
	PrivateKey     *ecdsa.PrivateKey
	Address        common.Address
	ExplorerURL    string
	ExplorerAPIKey string
}

// Equal reports whether two resolved networks are identical, including the
// signing key material.
func (n *Network) Equal(other *Network) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Name != other.Name || n.RPCURL != other.RPCURL || n.ChainID != other.ChainID ||
		n.Address != other.Address || n.ExplorerURL != other.ExplorerURL ||
		n.ExplorerAPIKey != other.ExplorerAPIKey {
		return false
	}
	if (n.PrivateKey == nil) != (other.PrivateKey == nil) {
		return false
	}
	if n.PrivateKey != nil && n.PrivateKey.D.Cmp(other.PrivateKey.D) != 0 {
		return false
	}
	return true
}

// KeyPromptFunc supplies a signing key when the configured environment
// variable is unset, e.g. an interactive terminal prompt.
type KeyPromptFunc func(envName string) (string, error)

// Resolver resolves network names against loaded configuration.
type Resolver struct {
	networks  map[string]config.Network
	lookupEnv func(string) (string, bool)
	promptKey KeyPromptFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithKeyPrompt installs a fallback prompt used when the signing key
// environment variable is unset.
func WithKeyPrompt(fn KeyPromptFunc) Option {
	return func(r *Resolver) { r.promptKey = fn }
}

// withLookupEnv overrides environment lookup, for tests.
func withLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// NewResolver creates a resolver over the configured networks.
func NewResolver(networks map[string]config.Network, opts ...Option) *Resolver {
	r := &Resolver{
		networks:  networks,
		lookupEnv: os.LookupEnv,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve resolves a network name into an immutable Network. Resolving the
// same name twice with unchanged configuration and environment yields equal
// values.
func (r *Resolver) Resolve(name string) (*Network, error) {
	entry, ok := r.networks[name]
	if !ok {
		return nil, &ConfigError{Kind: KindUnknownNetwork, Network: name}
	}

	if entry.RPCURL == "" {
		return nil, &ConfigError{Kind: KindMissingRPCURL, Network: name}
	}
	if err := validation.ValidateRPCURL(entry.RPCURL); err != nil {
		return nil, &ConfigError{Kind: KindMissingRPCURL, Network: name, Detail: err.Error()}
	}

	if err := validation.ValidateChainID(entry.ChainID); err != nil {
		return nil, &ConfigError{Kind: KindInvalidChainID, Network: name, Detail: err.Error()}
	}

	keyHex, err := r.signingKeyHex(name, entry)
	if err != nil {
		return nil, err
	}

	key, err := decodeKey(keyHex)
	if err != nil {
		return nil, &ConfigError{Kind: KindMalformedKey, Network: name, Detail: err.Error()}
	}

	n := &Network{
		Name:        name,
		RPCURL:      entry.RPCURL,
		ChainID:     entry.ChainID,
		PrivateKey:  key,
		Address:     crypto.PubkeyToAddress(key.PublicKey),
		ExplorerURL: entry.ExplorerURL,
	}

	if entry.ExplorerKeyEnv != "" {
		if v, ok := r.lookupEnv(entry.ExplorerKeyEnv); ok {
			n.ExplorerAPIKey = v
		}
	}

	return n, nil
}

// HasExplorer reports whether the network has a verification endpoint
// configured.
func (n *Network) HasExplorer() bool {
	return n.ExplorerURL != ""
}

func (r *Resolver) signingKeyHex(name string, entry config.Network) (string, error) {
	if entry.KeyEnv == "" {
		return "", &ConfigError{Kind: KindMissingKey, Network: name, Detail: "no key_env configured"}
	}

	if v, ok := r.lookupEnv(entry.KeyEnv); ok && v != "" {
		return v, nil
	}

	if r.promptKey != nil {
		v, err := r.promptKey(entry.KeyEnv)
		if err != nil {
			return "", &ConfigError{Kind: KindMissingKey, Network: name, Detail: err.Error()}
		}
		if v != "" {
			return v, nil
		}
	}

	return "", &ConfigError{
		Kind:    KindMissingKey,
		Network: name,
		Detail:  fmt.Sprintf("environment variable %s is not set", entry.KeyEnv),
	}
}

func decodeKey(keyHex string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(keyHex, "0x"))
	if err := validation.ValidateHexKey(trimmed); err != nil {
		return nil, err
	}
	return crypto.HexToECDSA(trimmed)
}
