package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileOperations reads the configuration and certificate files the bridge starts from.
type FileOperations interface {
	IsFileExists(filePath string) (bool, error)
	ReadFileRaw(filePath string) ([]byte, error)
	ReadYamlFile(filePath string, v any) error
}

// FileService implements FileOperations on the local filesystem.
type FileService struct {
	lookupEnv func(string) (string, bool)
}

// NewFileService creates a new instance of FileService.
func NewFileService() *FileService {
	return &FileService{lookupEnv: os.LookupEnv}
}

// IsFileExists reports whether filePath names a regular file. Permission errors are returned.
func (fs *FileService) IsFileExists(filePath string) (bool, error) {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// ReadFileRaw returns the contents of filePath.
func (fs *FileService) ReadFileRaw(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	return data, nil
}

// ReadYamlFile decodes filePath into v. ${NAME} references are replaced with the value of the
// environment variable NAME before decoding, so secrets can stay out of the file. Keys that do
// not map to a field of v are rejected. An empty file leaves v untouched.
func (fs *FileService) ReadYamlFile(filePath string, v any) error {
	data, err := fs.ReadFileRaw(filePath)
	if err != nil {
		return err
	}

	var missing []string
	expanded := envReference.ReplaceAllStringFunc(string(data), func(ref string) string {
		name := envReference.FindStringSubmatch(ref)[1]
		value, ok := fs.lookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return fmt.Errorf("%s references unset environment variables %v", filePath, missing)
	}

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}
