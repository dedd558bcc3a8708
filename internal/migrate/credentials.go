package migrate

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/samhotchkiss/tenantshift/internal/credentials"
)

type CredentialStageResult struct {
	OutputPath string
	Rows       int
	// Matched rows carry a password hash; Unmatched rows had no usable
	// hash row and keep an empty passwordHash.
	Matched   int
	Unmatched int
	Warnings  int
}

// runCredentialStage merges the user-detail and password-hash exports into
// the import CSV. Pure file work: nothing here touches either account, and
// the output is an artifact for operator review, not input to later stages.
func (r *Runner) runCredentialStage(input RunInput) (*CredentialStageResult, error) {
	logger := r.logger()

	userData, err := readFile(input.UserDetailsPath)
	if err != nil {
		return nil, fmt.Errorf("read user details: %w", err)
	}
	hashData, err := readFile(input.PasswordHashesPath)
	if err != nil {
		return nil, fmt.Errorf("read password hashes: %w", err)
	}

	users, err := credentials.ParseTable(bytes.NewReader(userData))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", input.UserDetailsPath, err)
	}
	hashes, err := credentials.ParseTable(bytes.NewReader(hashData))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", input.PasswordHashesPath, err)
	}

	merged, err := credentials.Merge(users, hashes)
	if err != nil {
		return nil, err
	}

	for _, warning := range users.Warnings {
		logger.Warn("user details input", zap.Int("row", warning.Row), zap.String("problem", warning.Message))
	}
	for _, warning := range hashes.Warnings {
		logger.Warn("password hash input", zap.Int("row", warning.Row), zap.String("problem", warning.Message))
	}
	for _, warning := range merged.Warnings {
		logger.Warn("credential merge", zap.Int("row", warning.Row), zap.String("problem", warning.Message))
	}

	outPath := input.CredentialsOutPath
	if outPath == "" {
		outPath = "migration_data.csv"
	}
	var buf bytes.Buffer
	if err := credentials.WriteCSV(&buf, merged); err != nil {
		return nil, err
	}
	if !r.DryRun {
		if err := writeFile(outPath, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", outPath, err)
		}
	}

	return &CredentialStageResult{
		OutputPath: outPath,
		Rows:       len(merged.Rows),
		Matched:    merged.Matched,
		Unmatched:  merged.Unmatched,
		Warnings:   len(users.Warnings) + len(hashes.Warnings) + len(merged.Warnings),
	}, nil
}
