package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

func openTestVault(t *testing.T) (*Vault, string) {
	t.Helper()
	dir := t.TempDir()
	v, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v, dir
}

func TestSaveGetRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		secrets map[string]string
	}{
		{
			name: "typical bundle",
			secrets: map[string]string{
				"access_key_id":     "AKIAEXAMPLE",
				"secret_access_key": "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
			},
		},
		{name: "empty map", secrets: map[string]string{}},
		{
			name:    "non-ascii values",
			secrets: map[string]string{"note": "ключ доступа 🔑", "región": "söder"},
		},
	}

	v, _ := openTestVault(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Save(waste.ProviderAWS, tt.name, tt.secrets)
			require.NoError(t, err)
			require.NotZero(t, id)

			got, err := v.Get(id)
			require.NoError(t, err)
			assert.Equal(t, tt.secrets, got.Secrets)
			assert.Equal(t, waste.ProviderAWS, got.Provider)
			assert.Equal(t, tt.name, got.Name)
			assert.False(t, got.CreatedAt.IsZero())
		})
	}
}

func TestGetUnknownID(t *testing.T) {
	v, _ := openTestVault(t)
	_, err := v.Get(99)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrIntegrity)
}

func TestTamperedBlobFailsIntegrity(t *testing.T) {
	tests := []struct {
		name string
		flip func(blob []byte) int // returns index to flip
	}{
		{name: "auth tag byte", flip: func(b []byte) int { return len(b) - 1 }},
		{name: "payload byte", flip: func(b []byte) int { return len(b) / 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := openTestVault(t)
			id, err := v.Save(waste.ProviderGCP, "prod", map[string]string{"token": "s3cret"})
			require.NoError(t, err)

			err = v.db.Update(func(tx *bbolt.Tx) error {
				b := tx.Bucket(bucketCredentials)
				var rec record
				require.NoError(t, json.Unmarshal(b.Get(itob(id)), &rec))
				rec.Blob[tt.flip(rec.Blob)] ^= 0x01
				raw, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				return b.Put(itob(id), raw)
			})
			require.NoError(t, err)

			_, err = v.Get(id)
			require.ErrorIs(t, err, ErrIntegrity)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGetLatestForProvider(t *testing.T) {
	v, _ := openTestVault(t)

	older, err := v.Save(waste.ProviderAWS, "old", map[string]string{"k": "v1"})
	require.NoError(t, err)
	newer, err := v.Save(waste.ProviderAWS, "new", map[string]string{"k": "v2"})
	require.NoError(t, err)
	_, err = v.Save(waste.ProviderGCP, "other", map[string]string{"k": "v3"})
	require.NoError(t, err)

	got, err := v.GetLatestForProvider(waste.ProviderAWS)
	require.NoError(t, err)
	assert.Equal(t, newer, got.ID)
	assert.NotEqual(t, older, got.ID)
	assert.Equal(t, "v2", got.Secrets["k"])

	_, err = v.GetLatestForProvider(waste.ProviderAzure)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListExposesMetadataOnly(t *testing.T) {
	v, _ := openTestVault(t)
	_, err := v.Save(waste.ProviderAWS, "prod", map[string]string{"secret_access_key": "TOPSECRET"})
	require.NoError(t, err)
	_, err = v.Save(waste.ProviderAzure, "staging", map[string]string{"client_secret": "ALSOSECRET"})
	require.NoError(t, err)

	list, err := v.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "prod", list[0].Name)
	assert.Equal(t, waste.ProviderAzure, list[1].Provider)

	raw, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "TOPSECRET")
	assert.NotContains(t, string(raw), "ALSOSECRET")
}

func TestCredentialJSONHidesSecrets(t *testing.T) {
	v, _ := openTestVault(t)
	id, err := v.Save(waste.ProviderAWS, "prod", map[string]string{"secret_access_key": "TOPSECRET"})
	require.NoError(t, err)

	cred, err := v.Get(id)
	require.NoError(t, err)

	raw, err := json.Marshal(cred)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "TOPSECRET")
}

func TestDelete(t *testing.T) {
	v, _ := openTestVault(t)
	id, err := v.Save(waste.ProviderAWS, "doomed", map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, v.Delete(id))
	_, err = v.Get(id)
	require.ErrorIs(t, err, ErrNotFound)

	// A second delete of the same id is a no-op.
	require.NoError(t, v.Delete(id))
}

func TestReopenKeepsKey(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir)
	require.NoError(t, err)
	id, err := v.Save(waste.ProviderAWS, "prod", map[string]string{"k": "survives"})
	require.NoError(t, err)
	require.NoError(t, v.Close())

	v2, err := Open(dir)
	require.NoError(t, err)
	defer v2.Close()

	got, err := v2.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "survives", got.Secrets["k"])
}

func TestMasterKeyFileMode(t *testing.T) {
	_, dir := openTestVault(t)
	info, err := os.Stat(filepath.Join(dir, "master.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
