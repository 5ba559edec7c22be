package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Office converts office documents with a headless LibreOffice.
type Office struct {
	binary  string
	timeout time.Duration
}

func NewOffice(binary string, timeout time.Duration) *Office {
	if binary == "" {
		binary = "soffice"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Office{binary: binary, timeout: timeout}
}

func (o *Office) Convert(ctx context.Context, sourcePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	outDir := filepath.Dir(sourcePath)
	cmd := exec.CommandContext(ctx, o.binary, "--headless", "--convert-to", "pdf", "--outdir", outDir, sourcePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s", ErrConversion, filepath.Base(sourcePath), err, strings.TrimSpace(stderr.String()))
	}
	logrus.Infof("converted %s to pdf in %s", filepath.Base(sourcePath), time.Since(start))

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("%w: expected output %s is missing", ErrConversion, filepath.Base(pdfPath))
	}

	return pdfPath, nil
}
