package modules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kriansa/zosmod/internal/ansible"
	"github.com/kriansa/zosmod/internal/bpxprm"
	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/host/hosttest"
	"github.com/kriansa/zosmod/internal/mount"
	"github.com/kriansa/zosmod/internal/validation"
	"github.com/kriansa/zosmod/internal/zoau"
)

const (
	testSrc    = "IMSTESTU.TST.MNT.ZFS"
	testPath   = "/pythonx"
	testMember = "IMSTESTU.BPX.PDS(AUTO1)"
)

var stamp = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

const initialMember = `/* Initial file to look like BPXPRM */
something = something else

/* This mount shouldn't change */
MOUNT FILESYSTEM('IMSTESTU.ZZZ.KID.GA.ZFS')
      MOUNTPOINT('/python3')
      TYPE('zFS')
      MODE(RDWR)
`

var (
	sourcePattern     = regexp.MustCompile(`FILESYSTEM\('([^']+)'\)`)
	mountPointPattern = regexp.MustCompile(`MOUNTPOINT\('([^']+)'\)`)
)

// mountEnv is a fake z/OS system: cataloged data sets with their text, and
// a mount table driven by the TSO commands the module issues
type mountEnv struct {
	fake     *hosttest.Fake
	datasets map[string]string
	dsorg    map[string]string
	mounted  map[string]string
	module   *MountModule
}

func newMountEnv(t *testing.T) *mountEnv {
	t.Helper()

	env := &mountEnv{
		fake: hosttest.NewFake(),
		datasets: map[string]string{
			testSrc:    "",
			testMember: initialMember,
		},
		dsorg: map[string]string{
			testSrc:            "VSAM",
			"IMSTESTU.BPX.PDS": "PO",
		},
		mounted: map[string]string{},
	}

	env.fake.Handle("dls", func(args []string) *host.Result {
		name := args[len(args)-1]
		if args[0] == "-l" {
			org, ok := env.dsorg[name]
			if !ok {
				return &host.Result{RC: 1}
			}
			return &host.Result{Stdout: fmt.Sprintf("%s  %s  FB  80  27920  VOL001\n", name, org)}
		}
		if _, ok := env.datasets[name]; ok {
			return &host.Result{Stdout: name + "\n"}
		}
		return &host.Result{RC: 1}
	})
	env.fake.Handle("mls", func(args []string) *host.Result {
		if _, ok := env.datasets[args[0]]; ok {
			_, member, _ := validation.SplitMember(args[0])
			return &host.Result{Stdout: member + "\n"}
		}
		return &host.Result{RC: 1}
	})
	env.fake.Handle("df", func([]string) *host.Result {
		var b strings.Builder
		b.WriteString("Mounted on     Filesystem                Avail/Total    Files      Status\n")
		for src, mp := range env.mounted {
			fmt.Fprintf(&b, "%s  (%s)  9000/10000  4294967000 Available\n", mp, src)
		}
		return &host.Result{Stdout: b.String()}
	})
	env.fake.Handle("tsocmd", func(args []string) *host.Result {
		src := sourcePattern.FindStringSubmatch(args[0])[1]
		switch {
		case strings.HasPrefix(args[0], "MOUNT"):
			env.mounted[src] = mountPointPattern.FindStringSubmatch(args[0])[1]
		case strings.HasPrefix(args[0], "UNMOUNT"):
			delete(env.mounted, src)
		}
		return &host.Result{Stdout: args[0]}
	})
	env.fake.Handle("dcp", func(args []string) *host.Result {
		env.datasets[args[1]] = env.datasets[args[0]]
		return nil
	})
	env.fake.Handle("cp", func(args []string) *host.Result {
		src, dst := args[0], args[1]
		if name, ok := strings.CutPrefix(src, "//'"); ok {
			env.fake.SetFile(dst, []byte(env.datasets[strings.TrimSuffix(name, "'")]))
			return nil
		}
		data, _ := env.fake.File(src)
		env.datasets[strings.TrimSuffix(strings.TrimPrefix(dst, "//'"), "'")] = string(data)
		return nil
	})

	env.module = NewMountModule(env.fake, zoau.NewClient(env.fake, ""), mount.NewTSOMounter(env.fake, "tsocmd"))
	env.module.now = func() time.Time { return stamp }
	return env
}

func (env *mountEnv) run(t *testing.T, checkMode bool, p MountParams) (*MountResult, error) {
	t.Helper()
	return env.module.Run(context.Background(), &ansible.Common{CheckMode: checkMode}, &p)
}

func baseParams() MountParams {
	return MountParams{
		Src:    strings.ToLower(testSrc),
		Path:   testPath,
		FSType: "zfs",
		State:  StateMounted,
	}
}

func persistentParams(comments ...string) MountParams {
	p := baseParams()
	p.Persistent = &PersistentParams{
		DataSetName: testMember,
		Comment:     comments,
	}
	return p
}

func TestMount_MountsWhenNotMounted(t *testing.T) {
	env := newMountEnv(t)

	res, err := env.run(t, false, baseParams())
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, testPath, env.mounted[testSrc])
	assert.Equal(t, testSrc, res.Src)
	assert.Equal(t, "ZFS", res.FSType)
	assert.Equal(t, 0, res.RC)
	assert.Contains(t, res.Cmd, "MOUNT FILESYSTEM")

	exists, _ := env.fake.Exists(context.Background(), testPath)
	assert.True(t, exists, "mount point is created")

	cmds := env.fake.CommandsTo("tsocmd")
	require.Len(t, cmds, 1)
	assert.Equal(t, bpxprm.MountStatement{
		Source:     testSrc,
		MountPoint: testPath,
		FSType:     "ZFS",
		SetUID:     true,
		Automove:   "AUTOMOVE",
	}.Command(), cmds[0][1])
}

func TestMount_AlreadyMounted(t *testing.T) {
	env := newMountEnv(t)
	env.mounted[testSrc] = testPath

	res, err := env.run(t, false, baseParams())
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Equal(t, "already mounted", res.Comment)
	assert.Empty(t, env.fake.CommandsTo("tsocmd"))
}

func TestMount_MountedElsewhere(t *testing.T) {
	env := newMountEnv(t)
	env.mounted[testSrc] = "/other"

	_, err := env.run(t, false, baseParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, mount.ErrMountedElsewhere))
	assert.Empty(t, env.fake.CommandsTo("tsocmd"))
}

func TestMount_DestinationInUse(t *testing.T) {
	env := newMountEnv(t)
	env.mounted["IMSTESTU.OTHER.ZFS"] = testPath

	_, err := env.run(t, false, baseParams())
	assert.EqualError(t, err, "Mount destination (/pythonx) is in use by another file system")
	assert.Empty(t, env.fake.CommandsTo("tsocmd"))
	assert.Equal(t, testPath, env.mounted["IMSTESTU.OTHER.ZFS"])
}

func TestMount_SourceMissing(t *testing.T) {
	env := newMountEnv(t)
	delete(env.datasets, testSrc)

	_, err := env.run(t, false, baseParams())
	assert.EqualError(t, err, "Mount source (IMSTESTU.TST.MNT.ZFS) doesn't exist")
}

func TestMount_Unmounted(t *testing.T) {
	env := newMountEnv(t)
	env.mounted[testSrc] = testPath

	p := baseParams()
	p.State = StateUnmounted
	p.UnmountOpts = "force"

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.NotContains(t, env.mounted, testSrc)
	assert.Equal(t, [][]string{{"tsocmd", "UNMOUNT FILESYSTEM('IMSTESTU.TST.MNT.ZFS') FORCE"}}, env.fake.CommandsTo("tsocmd"))
}

func TestMount_UnmountedWhenNotMounted(t *testing.T) {
	env := newMountEnv(t)

	p := baseParams()
	p.State = StateUnmounted
	p.Path = ""
	p.FSType = ""

	res, err := env.run(t, false, p)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "not mounted", res.Comment)
}

func TestMount_Remounted(t *testing.T) {
	env := newMountEnv(t)
	env.mounted[testSrc] = testPath

	p := baseParams()
	p.State = StateRemounted
	p.UnmountOpts = "REMOUNT"
	p.MountOpts = ansible.StringList{"same"}

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	cmds := env.fake.CommandsTo("tsocmd")
	require.Len(t, cmds, 2)
	assert.Equal(t, "UNMOUNT FILESYSTEM('IMSTESTU.TST.MNT.ZFS') REMOUNT(SAME)", cmds[0][1])
	assert.True(t, strings.HasPrefix(cmds[1][1], "MOUNT FILESYSTEM('IMSTESTU.TST.MNT.ZFS')"))
	assert.Equal(t, testPath, env.mounted[testSrc])
}

func TestMount_CheckMode(t *testing.T) {
	env := newMountEnv(t)

	res, err := env.run(t, true, persistentParams("check"))
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, ansible.CheckModeMessage, res.Stdout)
	assert.Contains(t, res.Cmd, "MOUNT FILESYSTEM")
	assert.Empty(t, env.fake.CommandsTo("tsocmd"))
	assert.Empty(t, env.mounted)
	assert.Equal(t, initialMember, env.datasets[testMember], "member is not written")
}

func TestMount_PersistentBlock(t *testing.T) {
	env := newMountEnv(t)

	res, err := env.run(t, false, persistentParams("bpxtablecomment - try this", "second line"))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, testMember, res.PersistentDS)

	stmt := bpxprm.MountStatement{
		Source:     testSrc,
		MountPoint: testPath,
		FSType:     "ZFS",
		SetUID:     true,
		Automove:   "AUTOMOVE",
	}
	block := bpxprm.BuildBlock(stmt, []string{"bpxtablecomment - try this", "second line"}, stamp)
	assert.Equal(t, initialMember+block+"\n", env.datasets[testMember])
	assert.Contains(t, env.datasets[testMember], "/* C1:bpxtablecomment - try this */\n/* C2:second line */")
}

func TestMount_PersistentIdempotent(t *testing.T) {
	env := newMountEnv(t)

	_, err := env.run(t, false, persistentParams("keep"))
	require.NoError(t, err)
	first := env.datasets[testMember]
	writes := len(env.fake.CommandsTo("cp"))

	env.module.now = func() time.Time { return stamp.Add(48 * time.Hour) }
	res, err := env.run(t, false, persistentParams("keep"))
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Equal(t, first, env.datasets[testMember])
	// only the read of the member ran
	assert.Len(t, env.fake.CommandsTo("cp"), writes+1)
}

func TestMount_PersistentReplacesChangedBlock(t *testing.T) {
	env := newMountEnv(t)

	_, err := env.run(t, false, persistentParams("old comment"))
	require.NoError(t, err)

	res, err := env.run(t, false, persistentParams("new comment"))
	require.NoError(t, err)
	assert.True(t, res.Changed)

	text := env.datasets[testMember]
	assert.NotContains(t, text, "old comment")
	assert.Contains(t, text, "new comment")
	assert.Equal(t, 1, strings.Count(text, "MOUNT FILESYSTEM('IMSTESTU.TST.MNT.ZFS')"))
}

func TestMount_PersistentBackup(t *testing.T) {
	env := newMountEnv(t)

	p := persistentParams()
	p.Persistent.Backup = true

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.True(t, res.Backup)
	assert.Equal(t, "IMSTESTU.BPX.PDS(AUTO1BAK)", res.BackupName)
	assert.Equal(t, initialMember, env.datasets["IMSTESTU.BPX.PDS(AUTO1BAK)"])
}

func TestMount_PersistentBackupWhenUnchanged(t *testing.T) {
	env := newMountEnv(t)

	_, err := env.run(t, false, persistentParams())
	require.NoError(t, err)
	current := env.datasets[testMember]

	p := persistentParams()
	p.Persistent.Backup = true
	p.Persistent.BackupName = "SAVED"

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Equal(t, "IMSTESTU.BPX.PDS(SAVED)", res.BackupName)
	assert.Equal(t, current, env.datasets["IMSTESTU.BPX.PDS(SAVED)"])
	assert.Equal(t, current, env.datasets[testMember])
}

func TestMount_PersistentBackupSkippedInCheckMode(t *testing.T) {
	env := newMountEnv(t)

	p := persistentParams()
	p.Persistent.Backup = true

	res, err := env.run(t, true, p)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Empty(t, res.BackupName)
	assert.Empty(t, env.fake.CommandsTo("dcp"))
}

func TestMount_PersistentNotPartitioned(t *testing.T) {
	env := newMountEnv(t)
	env.dsorg["IMSTESTU.BPX.PDS"] = "PS"

	_, err := env.run(t, false, persistentParams())
	assert.EqualError(t, err, "Persistent data set (IMSTESTU.BPX.PDS) is not partitioned, found DSORG PS")
	assert.Equal(t, initialMember, env.datasets[testMember])
}

func TestMount_PersistentMemberMissing(t *testing.T) {
	env := newMountEnv(t)
	delete(env.datasets, testMember)

	_, err := env.run(t, false, persistentParams())
	assert.EqualError(t, err, "Persistent data set (IMSTESTU.BPX.PDS(AUTO1)) doesn't exist")
}

func TestMount_AbsentRemovesBlock(t *testing.T) {
	env := newMountEnv(t)

	_, err := env.run(t, false, persistentParams("to be removed"))
	require.NoError(t, err)

	p := persistentParams()
	p.State = StateAbsent

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Empty(t, env.mounted)
	assert.Equal(t, initialMember, env.datasets[testMember])
}

func TestMount_PresentOnlyPersists(t *testing.T) {
	env := newMountEnv(t)

	p := persistentParams()
	p.State = StatePresent

	res, err := env.run(t, false, p)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Empty(t, env.fake.CommandsTo("tsocmd"))
	assert.Contains(t, env.datasets[testMember], "BEGIN ANSIBLE MANAGED BLOCK 20210101-000000")
}

func TestMount_TabCommentFallback(t *testing.T) {
	env := newMountEnv(t)

	p := persistentParams()
	p.TabComment = ansible.StringList{"from tabcomment"}

	res, err := env.run(t, false, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"from tabcomment"}, res.TabComment)
	assert.Contains(t, env.datasets[testMember], "/* C1:from tabcomment */")
}

func TestMount_ParameterValidation(t *testing.T) {
	ccsid := ansible.Int(819)

	tests := []struct {
		name   string
		modify func(p *MountParams)
		want   string
	}{
		{"bad src", func(p *MountParams) { p.Src = "1BAD.NAME" }, "src"},
		{"bad state", func(p *MountParams) { p.State = "sleeping" }, "state must be one of"},
		{"missing path", func(p *MountParams) { p.Path = "" }, "path is required"},
		{"relative path", func(p *MountParams) { p.Path = "relative" }, "absolute path"},
		{"missing fs_type", func(p *MountParams) { p.FSType = "" }, "fs_type is required"},
		{"bad fs_type", func(p *MountParams) { p.FSType = "xfs" }, "fs_type must be one of"},
		{"bad unmount_opts", func(p *MountParams) { p.UnmountOpts = "gently" }, "unmount_opts"},
		{"bad mount_opts", func(p *MountParams) { p.MountOpts = ansible.StringList{"fast"} }, "mount_opts"},
		{"ro and rw", func(p *MountParams) { p.MountOpts = ansible.StringList{"ro", "rw"} }, "both ro and rw"},
		{"bad tag", func(p *MountParams) { p.TagUntagged = "binary" }, "tag_untagged"},
		{"tag without ccsid", func(p *MountParams) { p.TagUntagged = "text" }, "tag_ccsid is required"},
		{"long sysname", func(p *MountParams) { p.SysName = "TOOLONGSYS" }, "sysname"},
		{"bad automove", func(p *MountParams) { p.Automove = "sometimes" }, "automove"},
		{"persistent without member", func(p *MountParams) {
			p.Persistent = &PersistentParams{DataSetName: "IMSTESTU.BPX.PDS"}
		}, "data_set_name"},
		{"bad backup name", func(p *MountParams) {
			p.Persistent = &PersistentParams{DataSetName: testMember, BackupName: "TOOLONGNAME"}
		}, "backup_name"},
		{"comment closes", func(p *MountParams) {
			p.Persistent = &PersistentParams{DataSetName: testMember, Comment: []string{"evil */ comment"}}
		}, "must not contain */"},
		{"valid tag", func(p *MountParams) {
			p.TagUntagged = "text"
			p.TagCCSID = &ccsid
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMountEnv(t)
			p := baseParams()
			tt.modify(&p)

			_, err := env.run(t, false, p)
			if tt.want == "" {
				require.NoError(t, err)
				return
			}

			var perr *ansible.ParamError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, env.fake.Commands(), "nothing runs on invalid parameters")
		})
	}
}

func TestBackupName(t *testing.T) {
	tests := []struct {
		member string
		name   string
		want   string
	}{
		{"SYS1.PARMLIB(BPXPRMAA)", "", "SYS1.PARMLIB(BPXPRBAK)"},
		{"SYS1.PARMLIB(AUTO1)", "", "SYS1.PARMLIB(AUTO1BAK)"},
		{"SYS1.PARMLIB(AB)", "", "SYS1.PARMLIB(ABBAK)"},
		{"SYS1.PARMLIB(BPXPRMAA)", "SAVED", "SYS1.PARMLIB(SAVED)"},
		{"SYS1.PARMLIB(BPXPRMAA)", "BACKUP.PDS(SAVED)", "BACKUP.PDS(SAVED)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, backupName(tt.member, tt.name))
		})
	}
}
