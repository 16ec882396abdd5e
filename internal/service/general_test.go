package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-labs/linkbrief-back/internal/db"
)

func TestRegisterAndLogin(t *testing.T) {
	gdb := setupTestDB(t)
	s := NewGeneral(gdb, zap.NewNop().Sugar())

	registerToken, err := s.Register("test@gmail.com", "longenoughpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, registerToken)

	user := db.User{}
	require.NoError(t, gdb.Where("email = ?", "test@gmail.com").First(&user).Error)
	assert.Equal(t, registerToken, user.Token)
	assert.NotEqual(t, "longenoughpassword", user.Password)

	loginToken, err := s.Login("test@gmail.com", "longenoughpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, loginToken)
	assert.NotEqual(t, registerToken, loginToken)
}

func TestLoginUnknownUser(t *testing.T) {
	s := NewGeneral(setupTestDB(t), zap.NewNop().Sugar())

	_, err := s.Login("nobody@gmail.com", "whatever-password")
	assert.Equal(t, ErrLoginUserNotFound, err)
}

func TestLoginWrongPassword(t *testing.T) {
	s := NewGeneral(setupTestDB(t), zap.NewNop().Sugar())

	_, err := s.Register("test@gmail.com", "longenoughpassword")
	require.NoError(t, err)

	_, err = s.Login("test@gmail.com", "the-wrong-password")
	assert.Equal(t, ErrLoginPasswordDoesNotMatch, err)
}
