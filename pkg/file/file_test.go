package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func withEnv(env map[string]string) *FileService {
	return &FileService{lookupEnv: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}
}

func TestIsFileExists(t *testing.T) {
	fs := NewFileService()

	exists, err := fs.IsFileExists(writeTemp(t, "present.txt", "x"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.IsFileExists(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = fs.IsFileExists(t.TempDir())
	require.NoError(t, err)
	assert.False(t, exists, "a directory is not a file")
}

func TestReadFileRaw(t *testing.T) {
	fs := NewFileService()

	data, err := fs.ReadFileRaw(writeTemp(t, "cert.pem", "-----BEGIN CERTIFICATE-----"))
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEGIN CERTIFICATE-----"), data)

	_, err = fs.ReadFileRaw(filepath.Join(t.TempDir(), "missing.pem"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadYamlFile(t *testing.T) {
	t.Run("decodes known fields", func(t *testing.T) {
		path := writeTemp(t, "ok.yaml", "broker: tcp://localhost\nport: 1883\n")
		var s sample
		require.NoError(t, NewFileService().ReadYamlFile(path, &s))
		assert.Equal(t, sample{Broker: "tcp://localhost", Port: 1883}, s)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		path := writeTemp(t, "typo.yaml", "brokr: tcp://localhost\n")
		var s sample
		assert.Error(t, NewFileService().ReadYamlFile(path, &s))
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		path := writeTemp(t, "empty.yaml", "")
		s := sample{Port: 7}
		require.NoError(t, NewFileService().ReadYamlFile(path, &s))
		assert.Equal(t, 7, s.Port)
	})

	t.Run("expands environment references", func(t *testing.T) {
		path := writeTemp(t, "env.yaml", "broker: ${BROKER}\npassword: p$ss${SUFFIX}\n")
		var s sample
		require.NoError(t, withEnv(map[string]string{"BROKER": "ssl://broker:8883", "SUFFIX": "!"}).ReadYamlFile(path, &s))
		assert.Equal(t, "ssl://broker:8883", s.Broker)
		assert.Equal(t, "p$ss!", s.Password)
	})

	t.Run("unset environment reference", func(t *testing.T) {
		path := writeTemp(t, "unset.yaml", "password: ${MQTT_PASSWORD}\n")
		var s sample
		err := withEnv(nil).ReadYamlFile(path, &s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MQTT_PASSWORD")
	})
}
