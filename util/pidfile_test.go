package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/APTrust/preservation-fixity/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pidFilePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "apt_queue_fixity.pid")
}

func TestIsRunningInOtherProcess(t *testing.T) {
	tempFile := pidFilePath(t)

	// False, because there is no pid file
	assert.False(t, util.IsRunningInOtherProcess(tempFile))

	// False, because pid 0 is not a real process
	os.WriteFile(tempFile, []byte("0"), 0664)
	assert.False(t, util.IsRunningInOtherProcess(tempFile))

	// False, because pid in file matches our pid
	util.WritePidFile(tempFile)
	assert.False(t, util.IsRunningInOtherProcess(tempFile))

	// True, because our parent is alive and is not us
	os.WriteFile(tempFile, []byte(itoa(os.Getppid())), 0664)
	assert.True(t, util.IsRunningInOtherProcess(tempFile))
}

func TestReadPidFile(t *testing.T) {
	tempFile := pidFilePath(t)
	os.WriteFile(tempFile, []byte("9499\n"), 0664)
	assert.Equal(t, 9499, util.ReadPidFile(tempFile))
	assert.Equal(t, 0, util.ReadPidFile(tempFile+".missing"))
}

func TestWritePidFile(t *testing.T) {
	tempFile := pidFilePath(t)
	require.Nil(t, util.WritePidFile(tempFile))
	assert.Equal(t, os.Getpid(), util.ReadPidFile(tempFile))
}

func TestAcquirePidFile(t *testing.T) {
	tempFile := pidFilePath(t)
	require.Nil(t, util.AcquirePidFile(tempFile))
	assert.Equal(t, os.Getpid(), util.ReadPidFile(tempFile))

	// Acquiring our own file again is fine.
	require.Nil(t, util.AcquirePidFile(tempFile))

	os.WriteFile(tempFile, []byte(itoa(os.Getppid())), 0664)
	assert.NotNil(t, util.AcquirePidFile(tempFile))
}

func TestDeletePidFile(t *testing.T) {
	tempFile := pidFilePath(t)
	util.WritePidFile(tempFile)
	assert.True(t, util.FileExists(tempFile))
	require.Nil(t, util.DeletePidFile(tempFile))
	assert.False(t, util.FileExists(tempFile))
	assert.NotNil(t, util.DeletePidFile("/a.pid"))
}

func TestProcessIsRunning(t *testing.T) {
	assert.False(t, util.ProcessIsRunning(-999))
	assert.True(t, util.ProcessIsRunning(os.Getpid()))
}
