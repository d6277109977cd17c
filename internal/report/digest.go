// Package report persists and reads proof-of-reserve artifacts.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/reserve-snapshot/internal/models"
)

// reportNamespace scopes report ids derived with UUIDv5
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:proof-of-reserve:report"))

// ContentDigest returns the keccak256 of the canonical JSON of s with its
// volatile fields blanked. Snapshots of identical inputs share a digest.
func ContentDigest(s *models.PoRSnapshot) (string, error) {
	stable := s.WithoutVolatileFields()

	raw, err := json.Marshal(&stable)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}

	return crypto.Keccak256Hash(canonical).Hex(), nil
}

// ReportID derives the report id from the report date and content digest
func ReportID(reportDate, digest string) string {
	return uuid.NewSHA1(reportNamespace, []byte(reportDate+"|"+digest)).String()
}

// Seal computes the digest and report id of s and stores them on it
func Seal(s *models.PoRSnapshot) error {
	digest, err := ContentDigest(s)
	if err != nil {
		return err
	}
	s.AuditInformation.ContentDigest = digest
	s.ReportMetadata.ReportID = ReportID(s.ReportMetadata.ReportDate, digest)
	return nil
}

// VerifyDigest recomputes the digest of a persisted snapshot and compares it
// with the embedded one
func VerifyDigest(s *models.PoRSnapshot) (bool, string, error) {
	digest, err := ContentDigest(s)
	if err != nil {
		return false, "", err
	}
	return digest == s.AuditInformation.ContentDigest, digest, nil
}
