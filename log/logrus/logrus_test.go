package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/zimage"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	boom := errors.New("boom")
	l.Warn("zimage: load failed", zimage.Fields{"uri": "https://e/x", "err": boom})
	l.Debug("zimage: resumed", nil)

	require.Len(t, hook.Entries, 2)
	e := hook.Entries[0]
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, "zimage", e.Data["component"])
	assert.Equal(t, "https://e/x", e.Data["uri"])
	assert.Equal(t, boom, e.Data[logrus.ErrorKey])

	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "zimage: resumed", hook.LastEntry().Message)
}
