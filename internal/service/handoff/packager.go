package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/service/deliverer"
)

// Packager materializes job and secret documents under the work dir. The
// job document holds the signed descriptor; secrets live in a separate
// file with tight permissions so they can be deleted independently the
// moment the executor is done.
type Packager struct {
	workDir string
	signer  *Signer
	logger  *zap.Logger
}

func NewPackager(workDir string, signer *Signer, logger *zap.Logger) *Packager {
	return &Packager{workDir: workDir, signer: signer, logger: logger}
}

type jobDocument struct {
	RunID string `json:"run_id"`
	Token string `json:"token"`
}

// Pack writes job_<run_id>.json and secrets_<run_id>.json and returns their
// paths.
func (p *Packager) Pack(desc JobDescriptor, secrets RuntimeSecrets) (jobPath, secretsPath string, err error) {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create work dir: %w", err)
	}

	token, err := p.signer.Sign(desc)
	if err != nil {
		return "", "", err
	}
	doc, err := json.MarshalIndent(jobDocument{RunID: desc.RunID, Token: token}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal job document: %w", err)
	}
	jobPath = filepath.Join(p.workDir, fmt.Sprintf("job_%s.json", desc.RunID))
	if err := os.WriteFile(jobPath, doc, 0o644); err != nil {
		return "", "", fmt.Errorf("write job document: %w", err)
	}

	raw, err := json.Marshal(secrets)
	if err != nil {
		return "", "", fmt.Errorf("marshal secrets: %w", err)
	}
	secretsPath = filepath.Join(p.workDir, fmt.Sprintf("secrets_%s.json", desc.RunID))
	if err := os.WriteFile(secretsPath, raw, 0o600); err != nil {
		return "", "", fmt.Errorf("write secrets: %w", err)
	}

	p.logger.Info("Job packaged",
		zap.String("run_id", desc.RunID),
		zap.Int("units", len(desc.Units)),
		zap.Strings("targets", desc.Targets))
	return jobPath, secretsPath, nil
}

// Unpack verifies a job document and loads its secrets file.
func (p *Packager) Unpack(jobPath, secretsPath string) (*JobDescriptor, *RuntimeSecrets, error) {
	raw, err := os.ReadFile(jobPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read job document: %w", err)
	}
	var doc jobDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse job document: %w", err)
	}
	desc, err := p.signer.Verify(doc.Token)
	if err != nil {
		return nil, nil, err
	}

	secrets := &RuntimeSecrets{}
	if secretsPath != "" {
		raw, err := os.ReadFile(secretsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read secrets: %w", err)
		}
		if err := json.Unmarshal(raw, secrets); err != nil {
			return nil, nil, fmt.Errorf("parse secrets: %w", err)
		}
		if !secrets.ExpiresAt.IsZero() && time.Now().UTC().After(secrets.ExpiresAt) {
			return nil, nil, fmt.Errorf("secrets for run %s expired at %s", desc.RunID, secrets.ExpiresAt)
		}
	}
	return desc, secrets, nil
}

// DeleteSecrets removes the credential file. Idempotent: a missing file is
// success. Both planner and executor call this, deliberately redundantly.
func (p *Packager) DeleteSecrets(runID string) error {
	path := filepath.Join(p.workDir, fmt.Sprintf("secrets_%s.json", runID))
	return DeleteSecretsFile(path, p.logger)
}

// DeleteSecretsFile removes an arbitrary secrets file, logging loudly when
// the deletion fails because a leaked bundle is a security event.
func DeleteSecretsFile(path string, logger *zap.Logger) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	logger.Error("SECRET LEAK RISK: failed to delete runtime credentials",
		zap.String("path", path),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrSecretLeakRisk, path, err)
}

// SecretsFor narrows the full credential map to the platforms a job needs.
func SecretsFor(runID string, targets []string, all map[string]deliverer.Credentials, ttl time.Duration) RuntimeSecrets {
	creds := make(map[string]deliverer.Credentials, len(targets))
	for _, target := range targets {
		if c, ok := all[target]; ok && len(c) > 0 {
			creds[target] = c
		}
	}
	return RuntimeSecrets{
		RunID:       runID,
		Credentials: creds,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
}
