package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// persist validates the captured bytes and writes them to outPath,
// creating intermediate directories. An existing file at the exact path
// is left untouched: it was either placed by CHECK_EXISTING's race
// window or by a concurrent prior run, and overwriting mid-flow risks
// partial-write corruption.
func (m *Machine) persist(data []byte, outPath string) error {
	if err := m.validate(data); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}

	if fileExists(outPath) {
		m.log.Info("export: artifact appeared mid-flow, keeping existing", "path", outPath)
		return nil
	}

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrFilesystem, dir, err)
	}

	// Temp-and-rename so a crash never leaves a half-written "completed"
	// artifact behind.
	tmp, err := os.CreateTemp(dir, ".export-*.pdf")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", ErrFilesystem, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrFilesystem, outPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrFilesystem, outPath, err)
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrFilesystem, outPath, err)
	}

	m.log.Info("export: artifact persisted", "path", outPath, "bytes", len(data))
	return nil
}

// validatePDF checks the bytes are a structurally sound PDF, so a
// truncated download never becomes a completed page in the ledger.
func validatePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty download")
	}
	return api.Validate(bytes.NewReader(data), model.NewDefaultConfiguration())
}
