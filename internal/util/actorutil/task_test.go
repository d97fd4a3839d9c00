package actorutil

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackgroundTaskSuccess(t *testing.T) {

	var got string
	NewBackgroundTask(nil, func() (*string, error) {
		v := "QPIGS"
		return &v, nil
	}).OnSuccess(func(v string) {
		got = v
	}).Run()

	assert.Equal(t, "QPIGS", got)
}

func TestBackgroundTaskRecover(t *testing.T) {

	assert := assert.New(t)

	taskErr := errors.New("nak")
	var got string
	NewBackgroundTask(nil, func() (*string, error) {
		return nil, taskErr
	}).Recover(func(err error) string {
		return "recovered: " + err.Error()
	}).OnSuccess(func(v string) {
		got = v
	}).Run()

	assert.Equal("recovered: nak", got)
}

func TestBackgroundTaskOnError(t *testing.T) {

	var gotErr error
	succeeded := false
	NewBackgroundTask(nil, func() (*string, error) {
		return nil, errors.New("crc mismatch")
	}).OnError(func(err error) {
		gotErr = err
	}).OnSuccess(func(string) {
		succeeded = true
	}).Run()

	assert.Error(t, gotErr)
	assert.False(t, succeeded)
}

func TestBackgroundTaskTimeoutKeepsLock(t *testing.T) {

	require := require.New(t)

	var lock sync.Mutex
	release := make(chan struct{})
	var timedOut bool
	NewBackgroundTask(nil, func() (*string, error) {
		<-release
		v := "late"
		return &v, nil
	}).WithLock(&lock).WithTimeout(50 * time.Millisecond).Recover(func(err error) string {
		timedOut = true
		return ""
	}).Run()

	require.True(timedOut)
	require.False(lock.TryLock(), "lock is held until the timed out task returns")

	close(release)
	require.Eventually(func() bool {
		if lock.TryLock() {
			lock.Unlock()
			return true
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestMapBackgroundTask(t *testing.T) {

	var got int
	MapBackgroundTask(NewBackgroundTaskNoError(nil, func() *string {
		v := "92931509101901"
		return &v
	}), func(s *string) *int {
		l := len(*s)
		return &l
	}).OnSuccess(func(v int) {
		got = v
	}).Run()

	assert.Equal(t, 14, got)
}

func TestPipeTo(t *testing.T) {

	as := NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()

	received := make(chan string, 1)
	sink := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(string); ok {
			received <- msg
		}
	}))
	starter := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(*actor.Started); ok {
			NewBackgroundTaskNoError(ctx, func() *string {
				v := "done"
				return &v
			}).PipeTo(sink)
		}
	}))
	defer as.Root.Stop(starter)

	select {
	case msg := <-received:
		assert.Equal(t, "done", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("task result not delivered")
	}
}

func TestParsedMQTTCommandToRequest(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{Command: "QPIGS"})
	assert.NoError(err)
	assert.Equal(domain.GetResponseMapRequest{Command: "QPIGS"}, req)

	req, err = ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{Command: "QID", Raw: true})
	assert.NoError(err)
	assert.Equal(domain.GetRawResponseRequest{Command: "QID"}, req)

	_, err = ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{})
	assert.Error(err)
}
