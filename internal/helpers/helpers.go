package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"go-twitch-archive/internal/models"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// HashFile computes the digests recorded for an archived media file.
func HashFile(filepath string) (models.FileHashes, error) {
	file, err := os.ReadFile(filepath)
	if err != nil {
		log.WithError(err).Errorf("Error reading file %s for hashing", filepath)
		return models.FileHashes{}, fmt.Errorf("reading %s: %w", filepath, err)
	}

	sha := sha256.Sum256(file)
	b3 := blake3.Sum256(file)

	return models.FileHashes{
		SHA256: hex.EncodeToString(sha[:]),
		BLAKE3: strings.ToUpper(hex.EncodeToString(b3[:])),
	}, nil
}

// CheckHash verifies a file against previously recorded hashes (BLAKE3, SHA256).
// It returns true if any of the hashes match.
func CheckHash(filepath string, hashes models.FileHashes) bool {
	if _, err := os.Stat(filepath); err == nil {
		file, err := os.ReadFile(filepath)
		if err != nil {
			log.WithError(err).Errorf("Error reading file %s for hash check", filepath)
			return false
		}

		if hashes.BLAKE3 != "" {
			blake3Hash := blake3.Sum256(file)
			calculated := strings.ToUpper(hex.EncodeToString(blake3Hash[:]))
			expected := strings.ToUpper(strings.TrimSpace(hashes.BLAKE3))
			if calculated == expected {
				log.WithField("hash", "BLAKE3").Debugf("Hash match for %s", filepath)
				return true
			}
		}

		if hashes.SHA256 != "" {
			shaHash := sha256.Sum256(file)
			calculated := hex.EncodeToString(shaHash[:])
			expected := strings.ToLower(strings.TrimSpace(hashes.SHA256))
			if calculated == expected {
				log.WithField("hash", "SHA256").Debugf("Hash match for %s", filepath)
				return true
			}
		}
	} else if !os.IsNotExist(err) {
		log.WithError(err).Warnf("Error stating file %s during hash check", filepath)
	}

	return false
}

// CounterWriter tracks the number of bytes written to the underlying writer.
// It's used to report download progress.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// ConvertToSlug converts a string into a filesystem-friendly slug.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	allowedChars := "0123456789abcdefghijklmnopqrstuvwxyz._-"

	var filtered strings.Builder
	for _, ch := range str {
		if strings.ContainsRune(allowedChars, ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	// Simplify repeated separators
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}
	for strings.Contains(str, "__") {
		str = strings.ReplaceAll(str, "__", "_")
	}
	str = strings.ReplaceAll(str, "-_", "-")
	str = strings.ReplaceAll(str, "_-", "-")

	// Remove leading/trailing separators
	str = strings.Trim(str, "_-")

	return str
}

// ParseTwitchDuration converts Twitch's duration notation ("1h2m3s") to
// whole seconds. Unknown characters are skipped.
func ParseTwitchDuration(duration string) int {
	seconds := 0
	current := 0
	haveDigits := false

	for _, ch := range duration {
		switch {
		case ch >= '0' && ch <= '9':
			current = current*10 + int(ch-'0')
			haveDigits = true
		case ch == 'h' && haveDigits:
			seconds += current * 3600
			current, haveDigits = 0, false
		case ch == 'm' && haveDigits:
			seconds += current * 60
			current, haveDigits = 0, false
		case ch == 's' && haveDigits:
			seconds += current
			current, haveDigits = 0, false
		default:
			current, haveDigits = 0, false
		}
	}

	return seconds
}

// FormatSeconds renders a chat offset as HH:MM:SS.
func FormatSeconds(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	// Use MkdirAll to create parent directories if they don't exist
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

// IsWritableDir reports whether path is an existing directory the process can
// create files in. The probe file is removed immediately.
func IsWritableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(path, ".writecheck.*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		log.WithError(err).Warnf("Failed to remove write probe %s", name)
	}
	return true
}
