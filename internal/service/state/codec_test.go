package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/pkg/crypto"
)

func populatedState(t *testing.T) domain.State {
	t.Helper()
	ctx := context.Background()
	app := webContainer("app")
	app.EnvVars = []domain.EnvVar{
		{Key: "API_TOKEN", Value: "s3cr3t", Masked: true},
		{Key: "LOG_LEVEL", Value: "debug"},
	}
	app.Volume = &domain.Volume{MountPath: "/data", SizeGB: 20, BackupFrequency: domain.BackupDaily}
	store, _, prodID := deployedStore(t, app)
	require.NoError(t, store.SetUser(ctx, domain.User{Name: "Ada", GitHubUsername: "ada"}))
	require.NoError(t, store.SetDatabase(ctx, prodID, domain.DatabaseConfig{Engine: domain.DatabasePostgres, CPU: "1", Memory: "2GB", StorageGB: 10, Replication: domain.ReplicationHA}))
	staging, err := store.CreateEnvironment(ctx, CreateEnvironmentInput{Name: "staging"})
	require.NoError(t, err)
	require.NoError(t, store.DeleteEnvironment(ctx, staging.ID))
	return store.Snapshot()
}

func TestCodecRoundTripKeepsDeletedEnvironments(t *testing.T) {
	st := populatedState(t)
	codec := NewCodec("", "")

	blob, err := codec.Encode(st)
	require.NoError(t, err)
	decoded, err := codec.Decode(blob)
	require.NoError(t, err)

	assert.Equal(t, st, decoded)
	require.Len(t, decoded.Project.Environments, 2)
	assert.Equal(t, domain.StatusDeleted, decoded.Project.Environments[1].Status)
}

func TestCodecSealsMaskedValues(t *testing.T) {
	st := populatedState(t)
	codec := NewCodec("seal-key", "")

	blob, err := codec.Encode(st)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "s3cr3t")
	assert.Contains(t, string(blob), crypto.SealedPrefix)
	assert.Contains(t, string(blob), "debug", "unmasked values stay readable")

	env, ok := st.ActiveEnvironment()
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", env.Containers[0].EnvVars[0].Value, "encoding must not touch the input")

	decoded, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, st, decoded)

	_, err = NewCodec("", "").Decode(blob)
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
	_, err = NewCodec("other-key", "").Decode(blob)
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
}

func TestCodecRejectsGarbage(t *testing.T) {
	_, err := NewCodec("", "").Decode([]byte("{not json"))
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
}

func TestCodecUpgradesLegacyBlob(t *testing.T) {
	legacy := `{
		"containers": [
			{"name": "web", "imageUrl": "nginx:latest", "port": 80, "exposure": "public",
			 "resources": {"cpu": "1 vCPU", "memory": "2GB", "replicas": {"min": 1, "max": 2}},
			 "serviceAccess": {"database": true},
			 "environmentVariables": [{"key": "DATABASE_URL", "value": ""}]}
		],
		"database": {"engine": "postgres", "cpu": "1 vCPU", "memory": "2GB", "storage": 20, "replicas": "Primary + 1 replica (HA)"},
		"deployed": true,
		"deployedAt": "2024-01-02T03:04:05Z"
	}`
	st, err := NewCodec("", "example.dev").Decode([]byte(legacy))
	require.NoError(t, err)

	require.NotNil(t, st.Project)
	assert.Empty(t, st.Containers)
	assert.Nil(t, st.Database)

	env, ok := st.ActiveEnvironment()
	require.True(t, ok)
	assert.Equal(t, domain.EnvironmentProduction, env.Type)
	assert.Equal(t, domain.StatusActive, env.Status)
	assert.True(t, env.Deployed)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), *env.DeployedAt)
	assert.Equal(t, "production.my-app.example.dev", env.BaseDomain)
	require.Len(t, env.Containers, 1)
	assert.NotEmpty(t, env.Containers[0].ID)
	assert.Equal(t, []string{"web"}, env.PublicContainers)
	require.NotNil(t, env.Database)
	assert.Equal(t, domain.ReplicationHA, env.Database.Replication)
	assert.Equal(t, 1, st.Project.TotalEnvironments)
}

func TestCodecLeavesUndeployedDraftAlone(t *testing.T) {
	blob := []byte(`{"containers":[{"id":"c1","name":"web","imageUrl":"nginx:latest","port":80}],"deployed":false}`)
	st, err := NewCodec("", "").Decode(blob)
	require.NoError(t, err)
	assert.Nil(t, st.Project)
	assert.Len(t, st.Containers, 1)
}
