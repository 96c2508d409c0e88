package crm

import (
	"os"
	"testing"

	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}
