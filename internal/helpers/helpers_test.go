package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-twitch-archive/internal/models"
)

func TestConvertToSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty string", "", ""},
		{"Simple string", "Simple Test", "simple_test"},
		{"With colon", "Test: Colon", "test-colon"},
		{"Stream title", "Speedrun Attempts! PB or bust", "speedrun_attempts_pb_or_bust"},
		{"Mixed case", "MixedCase Slug", "mixedcase_slug"},
		{"Invalid characters", "File*Name?Is\"Bad!", "filenameisbad"},
		{"Repeated dashes", "double--dash", "double-dash"},
		{"Repeated underscores", "double__underscore", "double_underscore"},
		{"Mixed repeated separators", "mixed-_-separator--test", "mixed-separator-test"},
		{"Leading/trailing spaces (handled by Trim)", "  Leading Trailing  ", "leading_trailing"},
		{"Leading/trailing separators", "-_Leading Trailing_-_", "leading_trailing"},
		{"Already valid", "valid-slug_1.0", "valid-slug_1.0"},
		{"All invalid", "!@#$%^&*()+", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToSlug(tt.input)
			if got != tt.want {
				t.Errorf("ConvertToSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Megabytes fractional", 1024*1024 + 512*1024, "1.50MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
		{"Large Terabytes", 1536 * 1024 * 1024 * 1024, "1.50TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestParseTwitchDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration string
		want     int
	}{
		{"Empty", "", 0},
		{"Seconds only", "45s", 45},
		{"Minutes and seconds", "2m3s", 123},
		{"Full notation", "1h2m3s", 3723},
		{"Hours only", "3h", 10800},
		{"Multi-digit fields", "10h20m30s", 37230},
		{"Trailing digits without unit", "1h30", 3600},
		{"Garbage", "abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTwitchDuration(tt.duration)
			if got != tt.want {
				t.Errorf("ParseTwitchDuration(%q) = %d, want %d", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"Zero", 0, "00:00:00"},
		{"Under a minute", 59.9, "00:00:59"},
		{"Minutes", 123, "00:02:03"},
		{"Hours", 3723, "01:02:03"},
		{"Double-digit hours", 3661, "10:11:01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSeconds(tt.seconds)
			if got != tt.want {
				t.Errorf("FormatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestHashFileAndCheckHash(t *testing.T) {
	tempDir := t.TempDir()

	testContent := []byte("this is test content for hashing")
	// echo -n "this is test content for hashing" | sha256sum
	expectedSHA256 := "e41e304c0e53a1561616a4871f64707701a38342665599694bb3774519a867e7"

	testFilePath := filepath.Join(tempDir, "test_hash_file.txt")
	if err := os.WriteFile(testFilePath, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	hashes, err := HashFile(testFilePath)
	if err != nil {
		t.Fatalf("HashFile(%q) returned error: %v", testFilePath, err)
	}
	if hashes.SHA256 != expectedSHA256 {
		t.Errorf("HashFile SHA256 = %q, want %q", hashes.SHA256, expectedSHA256)
	}
	if hashes.BLAKE3 == "" {
		t.Error("HashFile BLAKE3 is empty")
	}

	tests := []struct {
		name       string
		filepath   string
		hashes     models.FileHashes
		wantResult bool
	}{
		{
			name:       "No file exists",
			filepath:   filepath.Join(tempDir, "nonexistent_file.txt"),
			hashes:     hashes,
			wantResult: false,
		},
		{
			name:       "File exists, recorded hashes match",
			filepath:   testFilePath,
			hashes:     hashes,
			wantResult: true,
		},
		{
			name:       "File exists, SHA256 match (uppercase stored)",
			filepath:   testFilePath,
			hashes:     models.FileHashes{SHA256: strings.ToUpper(expectedSHA256)},
			wantResult: true,
		},
		{
			name:       "File exists, one hash mismatch, one match",
			filepath:   testFilePath,
			hashes:     models.FileHashes{BLAKE3: "incorrecthash", SHA256: expectedSHA256},
			wantResult: true,
		},
		{
			name:       "File exists, all hashes mismatch",
			filepath:   testFilePath,
			hashes:     models.FileHashes{BLAKE3: "incorrect1", SHA256: "incorrect2"},
			wantResult: false,
		},
		{
			name:       "File exists, no hashes provided",
			filepath:   testFilePath,
			hashes:     models.FileHashes{},
			wantResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotResult := CheckHash(tt.filepath, tt.hashes)
			if gotResult != tt.wantResult {
				t.Errorf("CheckHash(%q, %+v) = %v, want %v", tt.filepath, tt.hashes, gotResult, tt.wantResult)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	tests := []struct {
		name       string
		dirToMake  string // Relative to baseTempDir
		wantResult bool
		wantExists bool
	}{
		{
			name:       "Create simple directory",
			dirToMake:  "new_dir",
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Create nested directory",
			dirToMake:  filepath.Join("nested", "dir", "to", "create"),
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Attempt to create directory that is a file",
			dirToMake:  "existing_file.txt",
			wantResult: false,
			wantExists: false,
		},
		{
			name:       "Directory already exists",
			dirToMake:  "already_exists",
			wantResult: true,
			wantExists: true,
		},
	}

	// Pre-create structures needed for certain tests
	preExistingDir := filepath.Join(baseTempDir, "already_exists")
	if err := os.Mkdir(preExistingDir, 0755); err != nil {
		t.Fatalf("Failed to pre-create directory %s: %v", preExistingDir, err)
	}
	preExistingFile := filepath.Join(baseTempDir, "existing_file.txt")
	if _, err := os.Create(preExistingFile); err != nil {
		t.Fatalf("Failed to pre-create file %s: %v", preExistingFile, err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fullPathToMake := filepath.Join(baseTempDir, tt.dirToMake)
			gotResult := CheckAndMakeDir(fullPathToMake)

			if gotResult != tt.wantResult {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", fullPathToMake, gotResult, tt.wantResult)
			}

			_, err := os.Stat(fullPathToMake)
			gotExists := err == nil

			if gotExists != tt.wantExists {
				if tt.wantExists {
					t.Errorf("CheckAndMakeDir(%q) succeeded (%v) but directory does not exist", fullPathToMake, gotResult)
				} else {
					t.Errorf("CheckAndMakeDir(%q) failed (%v) but directory unexpectedly exists", fullPathToMake, gotResult)
				}
			}
		})
	}
}

func TestIsWritableDir(t *testing.T) {
	tempDir := t.TempDir()

	if !IsWritableDir(tempDir) {
		t.Errorf("IsWritableDir(%q) = false, want true", tempDir)
	}
	if IsWritableDir(filepath.Join(tempDir, "does-not-exist")) {
		t.Error("IsWritableDir on missing path = true, want false")
	}

	filePath := filepath.Join(tempDir, "plain_file")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if IsWritableDir(filePath) {
		t.Error("IsWritableDir on a regular file = true, want false")
	}
}
