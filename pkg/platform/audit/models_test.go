package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEventCategory(t *testing.T) {
	assert.Equal(t, CategoryRecord, EventAdmissionGranted.Category())
	assert.Equal(t, CategorySecurity, EventAdmissionRepeated.Category())
	assert.Equal(t, CategorySecurity, EventOperatorLoginFailed.Category())
	assert.Equal(t, CategoryOperations, EventSettingsChanged.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_new").Category())
}
