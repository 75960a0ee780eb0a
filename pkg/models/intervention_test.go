package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTempRef(t *testing.T) {
	i := &Intervention{ReferenceNumber: "TempRef:3f2a9c1e"}
	assert.True(t, i.HasTempRef())

	i.ReferenceNumber = "XX/PCA202401/PD202403"
	assert.False(t, i.HasTempRef())
}

func TestLocked(t *testing.T) {
	i := &Intervention{}
	assert.False(t, i.Locked())

	i.UnicefAccepted = true
	assert.True(t, i.Locked())

	i.UnicefAccepted = false
	i.PartnerAccepted = true
	assert.True(t, i.Locked())
}

func TestBaseNumber(t *testing.T) {
	i := &Intervention{ReferenceNumber: "XX/PCA202401/PD202403-02"}
	assert.Equal(t, "XX/PCA202401/PD202403", i.BaseNumber())

	i.ReferenceNumber = "XX/PCA202401/PD202403"
	assert.Equal(t, "XX/PCA202401/PD202403", i.BaseNumber())
}
