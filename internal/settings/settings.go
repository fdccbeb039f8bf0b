// Package settings persists operator-configurable state (OBS connection,
// role, sync targets) across restarts. Grounded on the teacher's
// internal/agent.LoadConfig/SaveConfig dual-path (encrypted blob, with a
// legacy-plaintext migration fallback), adapted from the teacher's
// relay-token payload to an obssync.yaml-shaped one and the teacher's
// eventual DeriveStorageKey() key scheme (machine ID only, no per-install
// token to key off of in this system).
package settings

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/obssync/engine/internal/crypto"
	"github.com/obssync/engine/internal/model"
)

// fileHeader identifies the encrypted settings format on disk.
const fileHeader = "OBSSYNC1\n"

// Settings is the full set of operator-configurable, persisted state.
type Settings struct {
	Mode          model.Mode          `yaml:"mode"`
	OBSHost       string               `yaml:"obsHost"`
	OBSPort       int                  `yaml:"obsPort"`
	OBSPassword   string               `yaml:"-"` // never serialized in plaintext
	SyncTargets   []model.TargetType  `yaml:"syncTargets"`
	MasterAddr    string               `yaml:"masterListenAddr"`
	SlaveHost     string               `yaml:"slaveMasterHost"`
	SlavePort     int                  `yaml:"slaveMasterPort"`
}

// Default returns the out-of-the-box settings for a first run.
func Default() Settings {
	return Settings{
		Mode:        model.ModeMaster,
		OBSHost:     "localhost",
		OBSPort:     4455,
		SyncTargets: model.DefaultSyncTargets().Slice(),
		MasterAddr:  ":7451",
		SlaveHost:   "localhost",
		SlavePort:   7451,
	}
}

// plaintextFields is the subset of Settings serialized as YAML; the
// password rides alongside, separately encrypted.
type plaintextFields struct {
	Mode        model.Mode         `yaml:"mode"`
	OBSHost     string             `yaml:"obsHost"`
	OBSPort     int                `yaml:"obsPort"`
	SyncTargets []model.TargetType `yaml:"syncTargets"`
	MasterAddr  string             `yaml:"masterListenAddr"`
	SlaveHost   string             `yaml:"slaveMasterHost"`
	SlavePort   int                `yaml:"slaveMasterPort"`
}

type onDiskFile struct {
	Plain       plaintextFields `yaml:"settings"`
	OBSPassword string          `yaml:"obsPasswordEnc,omitempty"`
}

// legacyFile is the plaintext YAML format used before password encryption
// was introduced; present only to support a graceful one-time migration.
type legacyFile struct {
	Plain       plaintextFields `yaml:"settings"`
	OBSPassword string          `yaml:"obsPassword,omitempty"`
}

// Load reads settings from path. A missing file is not an error: it
// returns Default() so a first run has something sane to work with.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}

	if bytes.HasPrefix(data, []byte(fileHeader)) {
		return loadEncrypted(data[len(fileHeader):])
	}
	return loadLegacyPlaintext(data)
}

func loadEncrypted(payload []byte) (Settings, error) {
	var f onDiskFile
	if err := yaml.Unmarshal(payload, &f); err != nil {
		return Settings{}, fmt.Errorf("settings: parse: %w", err)
	}

	out := fromPlain(f.Plain)

	if f.OBSPassword != "" {
		ciphertext, err := base64.StdEncoding.DecodeString(f.OBSPassword)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: decode password blob: %w", err)
		}
		key, err := crypto.DeriveStorageKey()
		if err != nil {
			return Settings{}, fmt.Errorf("settings: derive key: %w", err)
		}
		plain, err := crypto.DecryptBytes(key, ciphertext)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: decrypt password (wrong machine?): %w", err)
		}
		out.OBSPassword = string(plain)
	}
	return out, nil
}

// loadLegacyPlaintext handles a pre-encryption settings file, migrating it
// in memory; the next Save call rewrites it in the encrypted format.
func loadLegacyPlaintext(data []byte) (Settings, error) {
	var f legacyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Settings{}, fmt.Errorf("settings: parse legacy file: %w", err)
	}
	out := fromPlain(f.Plain)
	out.OBSPassword = f.OBSPassword
	return out, nil
}

func fromPlain(p plaintextFields) Settings {
	return Settings{
		Mode:        p.Mode,
		OBSHost:     p.OBSHost,
		OBSPort:     p.OBSPort,
		SyncTargets: p.SyncTargets,
		MasterAddr:  p.MasterAddr,
		SlaveHost:   p.SlaveHost,
		SlavePort:   p.SlavePort,
	}
}

func toPlain(s Settings) plaintextFields {
	return plaintextFields{
		Mode:        s.Mode,
		OBSHost:     s.OBSHost,
		OBSPort:     s.OBSPort,
		SyncTargets: s.SyncTargets,
		MasterAddr:  s.MasterAddr,
		SlaveHost:   s.SlaveHost,
		SlavePort:   s.SlavePort,
	}
}

// Save writes settings to path, always in the current (non-legacy) format:
// the fields are plaintext YAML and only the OBS password is encrypted,
// under a machine-locked key.
func Save(path string, s Settings) error {
	f := onDiskFile{Plain: toPlain(s)}

	if s.OBSPassword != "" {
		key, err := crypto.DeriveStorageKey()
		if err != nil {
			return fmt.Errorf("settings: derive key: %w", err)
		}
		ciphertext, err := crypto.EncryptBytes(key, []byte(s.OBSPassword))
		if err != nil {
			return fmt.Errorf("settings: encrypt password: %w", err)
		}
		f.OBSPassword = base64.StdEncoding.EncodeToString(ciphertext)
	}

	plain, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.Write(plain)
	return os.WriteFile(path, buf.Bytes(), 0600)
}
