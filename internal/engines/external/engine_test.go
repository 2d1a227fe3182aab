package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foundriesio/aiupdate/pkg/engine"
	"github.com/foundriesio/aiupdate/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineScript = `#!/bin/sh
case "$1" in
check)
	echo '{"progress":{"percent":50,"bytes":1,"total":2}}'
	echo "checking $2" >&2
	echo '{"result":{"UpdateAvailable":true,"AbsolutePath":"'"$2"'"}}'
	;;
update)
	echo '{"error":{"code":7}}'
	;;
esac
`

type (
	notification struct {
		action engine.Action
		result engine.Result
		code   engine.ErrorCode
		failed bool
	}
	collector struct {
		events   chan notification
		mu       sync.Mutex
		progress []engine.Progress
	}
)

func (c *collector) OnSuccess(result engine.Result, action engine.Action) {
	c.events <- notification{action: action, result: result}
}

func (c *collector) OnError(code engine.ErrorCode, action engine.Action) {
	c.events <- notification{action: action, code: code, failed: true}
}

func (c *collector) OnProgress(p engine.Progress, _ engine.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, p)
}

func writeEngine(t *testing.T, script string) *Manifest {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.sh"), []byte(script), 0o755))
	manifest := filepath.Join(dir, "scripted.ini")
	require.NoError(t, os.WriteFile(manifest, []byte("exec = engine.sh\n[errors]\n7 = download failed\n"), 0o644))
	m, err := LoadManifest(manifest)
	require.NoError(t, err)
	return m
}

func runAction(t *testing.T, e *Engine, action engine.Action) (notification, *collector) {
	c := &collector{events: make(chan notification, 1)}
	e.Subscribe(c)
	e.SetArtifactPath("/opt/app.AppImage")
	e.Start(context.Background(), action)
	select {
	case n := <-c.events:
		return n, c
	case <-time.After(10 * time.Second):
		require.FailNow(t, "no notification from the engine process")
	}
	return notification{}, c
}

func TestLoadManifest(t *testing.T) {
	m := writeEngine(t, engineScript)
	assert.Equal(t, "scripted", m.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(m.Path), "engine.sh"), m.Exec)
	assert.Empty(t, m.Args)
	assert.Equal(t, map[engine.ErrorCode]string{7: "download failed"}, m.Errors)

	dir := t.TempDir()
	named := filepath.Join(dir, "other.ini")
	require.NoError(t, os.WriteFile(named, []byte("name = fancy\nexec = /usr/bin/fancy\nargs = --quiet --color=never\n"), 0o644))
	m, err := LoadManifest(named)
	require.NoError(t, err)
	assert.Equal(t, "fancy", m.Name)
	assert.Equal(t, "/usr/bin/fancy", m.Exec)
	assert.Equal(t, []string{"--quiet", "--color=never"}, m.Args)

	noExec := filepath.Join(dir, "noexec.ini")
	require.NoError(t, os.WriteFile(noExec, []byte("name = broken\n"), 0o644))
	_, err = LoadManifest(noExec)
	assert.Error(t, err)

	badCode := filepath.Join(dir, "badcode.ini")
	require.NoError(t, os.WriteFile(badCode, []byte("exec = x\n[errors]\nseven = oops\n"), 0o644))
	_, err = LoadManifest(badCode)
	assert.Error(t, err)

	for _, reserved := range []engine.ErrorCode{ProcessFailed, EngineBusy} {
		manifest := filepath.Join(dir, "reserved.ini")
		require.NoError(t, os.WriteFile(manifest, []byte(fmt.Sprintf("exec = x\n[errors]\n%d = oops\n", reserved)), 0o644))
		_, err = LoadManifest(manifest)
		assert.ErrorContains(t, err, "reserved error code")
	}

	_, err = LoadManifest(filepath.Join(dir, "missing.ini"))
	assert.Error(t, err)
}

func TestEngine_Check(t *testing.T) {
	e := New(writeEngine(t, engineScript))
	n, c := runAction(t, e, engine.CheckForUpdate)
	require.False(t, n.failed)
	assert.Equal(t, engine.Result{"UpdateAvailable": true, "AbsolutePath": "/opt/app.AppImage"}, n.result)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []engine.Progress{{Percent: 50, Bytes: 1, Total: 2}}, c.progress)
}

func TestEngine_Error(t *testing.T) {
	e := New(writeEngine(t, engineScript))
	n, _ := runAction(t, e, engine.Update)
	require.True(t, n.failed)
	assert.Equal(t, engine.ErrorCode(7), n.code)
	assert.Equal(t, "download failed", e.ErrorCodeToDescription(n.code))
	assert.Equal(t, "unknown error code 8", e.ErrorCodeToDescription(8))
}

func TestEngine_LongStderrLines(t *testing.T) {
	script := `#!/bin/sh
head -c 200000 /dev/zero | tr '\0' x >&2
echo >&2
head -c 2000000 /dev/zero | tr '\0' y >&2
echo >&2
head -c 200000 /dev/zero | tr '\0' z >&2
echo >&2
echo '{"result":{"UpdateAvailable":false}}'
`
	e := New(writeEngine(t, script))
	n, _ := runAction(t, e, engine.CheckForUpdate)
	require.False(t, n.failed, "code %d", n.code)
	assert.Equal(t, engine.Result{"UpdateAvailable": false}, n.result)
}

func TestEngine_ProcessFailures(t *testing.T) {
	for name, script := range map[string]string{
		"exit code":        "#!/bin/sh\necho '{\"result\":{\"UpdateAvailable\":false}}'\nexit 3\n",
		"no final message": "#!/bin/sh\necho '{\"progress\":{\"percent\":10}}'\n",
		"garbage":          "#!/bin/sh\necho 'this is not json'\n",
		"two results":      "#!/bin/sh\necho '{\"result\":{}}'\necho '{\"error\":{\"code\":1}}'\n",
		"unknown message":  "#!/bin/sh\necho '{\"hello\":1}'\n",
	} {
		t.Run(name, func(t *testing.T) {
			e := New(writeEngine(t, script))
			n, _ := runAction(t, e, engine.CheckForUpdate)
			require.True(t, n.failed)
			assert.Equal(t, ProcessFailed, n.code)
			assert.Equal(t, "engine process failed", e.ErrorCodeToDescription(n.code))
		})
	}

	e := New(&Manifest{Name: "missing", Exec: "/nonexistent/engine"})
	n, _ := runAction(t, e, engine.CheckForUpdate)
	assert.Equal(t, ProcessFailed, n.code)
}

func TestWorkflow_ExternalEngine(t *testing.T) {
	e := New(writeEngine(t, engineScript))
	report, err := workflow.Run(context.Background(), e, "/opt/app.AppImage")
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeFailed, report.Outcome)
	assert.Equal(t, engine.Update, report.Action)
	assert.Equal(t, engine.ErrorCode(7), report.Code)
	assert.Equal(t, []string{"ERROR: Update failed: download failed"}, report.Lines())
}
