package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository/memstore"
	"github.com/iliyamo/task-manager/internal/service"
)

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["create-admin"])
	assert.True(t, names["audit"])

	sub := map[string]bool{}
	for _, c := range migrateCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"up": true, "down": true, "status": true}, sub)
}

func TestRunCreateAdmin(t *testing.T) {
	store := memstore.New()
	auth := service.NewAuthService(store, nil, queue.NopPublisher{}, bcrypt.MinCost)
	var out bytes.Buffer

	err := runCreateAdmin(context.Background(), auth, " Root ", "Root@Example.com", "Adm1nPass", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "<root@example.com>")

	u, err := store.UserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, "Root", u.Name)
	assert.True(t, u.IsActive)

	err = runCreateAdmin(context.Background(), auth, "Root", "root@example.com", "Adm1nPass", &out)
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)
}

func TestRunCreateAdminRejectsWeakPassword(t *testing.T) {
	auth := service.NewAuthService(memstore.New(), nil, queue.NopPublisher{}, bcrypt.MinCost)
	err := runCreateAdmin(context.Background(), auth, "Root", "root@example.com", "password", &bytes.Buffer{})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	assert.Equal(t, "password", apperr.From(err).Fields[0].Field)
}
