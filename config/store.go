package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/magiconair/properties"

	"github.com/mattpollicove/p1person/core"
)

const additionalAttributePrefix = "additional_attribute."

// Store persists tool settings as a Java-style properties file. The client
// secret is encrypted through the secret provider before it touches disk;
// everything else is stored as written.
type Store struct {
	path    string
	secrets core.SecretProvider
}

func NewStore(path string, secrets core.SecretProvider) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, core.NewError("config: store path is required", goerrors.CategoryBadInput)
	}
	if secrets == nil {
		return nil, core.NewError("config: secret provider is required", goerrors.CategoryInternal)
	}
	return &Store{path: path, secrets: secrets}, nil
}

// Exists reports whether a settings file is present, i.e. whether the tool
// has been configured on this machine.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the configuration and credential. The plaintext secret is
// sealed first; if the credential already carries an encrypted secret it is
// reused unchanged.
func (s *Store) Save(cfg core.Config, cred core.Credential) error {
	sealed := cred.EncryptedSecret
	if sealed == "" {
		if err := cred.Validate(); err != nil {
			return err
		}
		var err error
		sealed, err = s.secrets.Encrypt(cred.ClientSecret)
		if err != nil {
			return err
		}
	} else if strings.TrimSpace(cred.EnvironmentID) == "" || strings.TrimSpace(cred.ClientID) == "" {
		return core.NewError(
			"config: credential missing required fields: environment_id, client_id",
			goerrors.CategoryValidation,
		)
	}

	props := properties.NewProperties()
	set := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		props.MustSet(key, value)
	}
	set("friendly_name", cfg.FriendlyName)
	set("region", cfg.Region)
	set("environment_id", cred.EnvironmentID)
	set("client_id", cred.ClientID)
	set("client_secret", sealed)
	set("attribute_prefix", cfg.AttributePrefix)
	set("api_log_level", cfg.Logging.APILevel)
	set("connection_log_level", cfg.Logging.ConnectionLevel)

	names := make([]string, 0, len(cfg.AdditionalAttrs))
	for name := range cfg.AdditionalAttrs {
		if strings.TrimSpace(name) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set(additionalAttributePrefix+name, cfg.AdditionalAttrs[name])
	}

	var buf bytes.Buffer
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: encode properties")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return core.WrapError(err, goerrors.CategoryInternal, "config: create settings directory")
		}
	}
	return s.writeFile(buf.Bytes())
}

// writeFile replaces the settings file atomically with 0600 permissions so
// a partially written file never exists under the settings path.
func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".p1person-*")
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: create temp settings file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return core.WrapError(err, goerrors.CategoryInternal, "config: restrict settings file permissions")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.WrapError(err, goerrors.CategoryInternal, "config: write settings file")
	}
	if err := tmp.Close(); err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: close settings file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: replace settings file")
	}
	return nil
}

// SetAdditionalAttribute adds or updates one additional-attribute entry in
// the settings file, leaving the rest of the stored configuration untouched.
func (s *Store) SetAdditionalAttribute(name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.NewError("config: attribute name is required", goerrors.CategoryBadInput)
	}
	if !s.Exists() {
		return core.NewError(
			fmt.Sprintf("config: settings file %s not found", s.path),
			goerrors.CategoryNotFound,
		).WithTextCode(core.TextCodeValidation)
	}
	props, err := properties.LoadFile(s.path, properties.UTF8)
	if err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: read settings file")
	}
	props.MustSet(additionalAttributePrefix+name, description)

	var buf bytes.Buffer
	if _, err := props.Write(&buf, properties.UTF8); err != nil {
		return core.WrapError(err, goerrors.CategoryInternal, "config: encode properties")
	}
	return s.writeFile(buf.Bytes())
}

// Load reads the stored configuration and decrypts the credential. Missing
// connection fields are a validation failure; an unreadable secret is a
// decrypt failure, so callers can prompt for reconfiguration versus
// re-entry of the secret.
func (s *Store) Load(ctx context.Context) (core.Config, core.Credential, error) {
	if !s.Exists() {
		return core.Config{}, core.Credential{}, core.NewError(
			fmt.Sprintf("config: settings file %s not found", s.path),
			goerrors.CategoryNotFound,
		).WithTextCode(core.TextCodeValidation)
	}
	props, err := properties.LoadFile(s.path, properties.UTF8)
	if err != nil {
		return core.Config{}, core.Credential{}, core.WrapError(err, goerrors.CategoryInternal, "config: read settings file")
	}

	provider := core.NewCfgxConfigProvider(propsLoader{props: props})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, core.Credential{}, core.WrapError(err, goerrors.CategoryValidation, "config: build configuration")
	}

	cred := core.Credential{
		FriendlyName:    cfg.FriendlyName,
		EnvironmentID:   cfg.EnvironmentID,
		ClientID:        cfg.ClientID,
		EncryptedSecret: strings.TrimSpace(props.GetString("client_secret", "")),
	}
	if cred.EncryptedSecret == "" {
		return core.Config{}, core.Credential{}, core.NewError(
			"config: credential missing required fields: client_secret",
			goerrors.CategoryValidation,
		)
	}

	plaintext, err := s.secrets.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return core.Config{}, core.Credential{}, err
	}
	cred.ClientSecret = plaintext

	if err := cred.Validate(); err != nil {
		return core.Config{}, core.Credential{}, err
	}
	return cfg, cred, nil
}

// propsLoader adapts a properties file to the raw map shape the config
// provider expects.
type propsLoader struct {
	props *properties.Properties
}

func (l propsLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	setIf := func(target, key string) {
		if value := strings.TrimSpace(l.props.GetString(key, "")); value != "" {
			raw[target] = value
		}
	}
	setIf("friendly_name", "friendly_name")
	setIf("region", "region")
	setIf("environment_id", "environment_id")
	setIf("client_id", "client_id")
	setIf("attribute_prefix", "attribute_prefix")

	logging := map[string]any{}
	if value := strings.TrimSpace(l.props.GetString("api_log_level", "")); value != "" {
		logging["api_log_level"] = value
	}
	if value := strings.TrimSpace(l.props.GetString("connection_log_level", "")); value != "" {
		logging["connection_log_level"] = value
	}
	if len(logging) > 0 {
		raw["logging"] = logging
	}

	additions := map[string]any{}
	for _, key := range l.props.Keys() {
		if !strings.HasPrefix(key, additionalAttributePrefix) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(key, additionalAttributePrefix))
		if name == "" {
			continue
		}
		additions[name] = l.props.GetString(key, "")
	}
	if len(additions) > 0 {
		raw["additional_attributes"] = additions
	}
	return raw, nil
}

var _ core.RawConfigLoader = (*propsLoader)(nil)
