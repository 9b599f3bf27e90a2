// Package modules implements the zos_mount, zos_find and zos_gather_facts
// Ansible modules on top of the host, ZOAU and mount layers.
package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kriansa/zosmod/internal/ansible"
	"github.com/kriansa/zosmod/internal/bpxprm"
	"github.com/kriansa/zosmod/internal/host"
	"github.com/kriansa/zosmod/internal/log"
	"github.com/kriansa/zosmod/internal/mount"
	"github.com/kriansa/zosmod/internal/validation"
	"github.com/kriansa/zosmod/internal/zoau"
)

// Mount states
const (
	StateMounted   = "mounted"
	StateUnmounted = "unmounted"
	StatePresent   = "present"
	StateAbsent    = "absent"
	StateRemounted = "remounted"
)

var (
	mountStates   = []string{StateMounted, StateUnmounted, StatePresent, StateAbsent, StateRemounted}
	fsTypes       = []string{"HFS", "ZFS", "NFS", "TFS"}
	mountOptions  = []string{"ro", "rw", "same", "nowait", "nosecurity"}
	tagOptions    = []string{"", "TEXT", "NOTEXT"}
	automoveModes = []string{"AUTOMOVE", "NOAUTOMOVE", "UNMOUNT"}
)

// PersistentParams selects the BPXPRMxx member that keeps the mount across IPLs
type PersistentParams struct {
	DataSetName string             `json:"data_set_name"`
	Backup      ansible.Bool       `json:"backup"`
	BackupName  string             `json:"backup_name"`
	Comment     ansible.StringList `json:"comment"`
}

// MountParams are the zos_mount arguments
type MountParams struct {
	Src          string             `json:"src"`
	Path         string             `json:"path"`
	FSType       string             `json:"fs_type"`
	State        string             `json:"state"`
	Persistent   *PersistentParams  `json:"persistent"`
	TabComment   ansible.StringList `json:"tabcomment"`
	UnmountOpts  string             `json:"unmount_opts"`
	MountOpts    ansible.StringList `json:"mount_opts"`
	SrcParams    string             `json:"src_params"`
	TagUntagged  string             `json:"tag_untagged"`
	TagCCSID     *ansible.Int       `json:"tag_ccsid"`
	AllowUID     *ansible.Bool      `json:"allow_uid"`
	SysName      string             `json:"sysname"`
	Automove     string             `json:"automove"`
	AutomoveList string             `json:"automove_list"`
}

// MountResult is the zos_mount result
type MountResult struct {
	Path         string   `json:"path"`
	Src          string   `json:"src"`
	FSType       string   `json:"fs_type"`
	State        string   `json:"state"`
	PersistentDS string   `json:"persistent_ds,omitempty"`
	Backup       bool     `json:"backup"`
	BackupName   string   `json:"backup_name,omitempty"`
	TabComment   []string `json:"tabcomment"`
	UnmountOpts  string   `json:"unmount_opts"`
	MountOpts    []string `json:"mount_opts"`
	SrcParams    string   `json:"src_params"`
	TagUntagged  string   `json:"tag_untagged"`
	TagCCSID     int      `json:"tag_ccsid"`
	AllowUID     bool     `json:"allow_uid"`
	SysName      string   `json:"sysname"`
	Automove     string   `json:"automove"`
	AutomoveList string   `json:"automove_list"`
	Cmd          string   `json:"cmd"`
	Changed      bool     `json:"changed"`
	Comment      string   `json:"comment,omitempty"`
	RC           int      `json:"rc"`
	Stdout       string   `json:"stdout"`
	Stderr       string   `json:"stderr"`
}

// MountModule implements zos_mount
type MountModule struct {
	host    host.Host
	zoau    *zoau.Client
	mounter mount.Mounter
	now     func() time.Time
}

// NewMountModule creates the zos_mount module
func NewMountModule(h host.Host, z *zoau.Client, m mount.Mounter) *MountModule {
	return &MountModule{
		host:    h,
		zoau:    z,
		mounter: m,
		now:     time.Now,
	}
}

// normalize fills defaults and canonical case into p
func (p *MountParams) normalize() {
	p.Src = strings.ToUpper(strings.TrimSpace(p.Src))
	p.FSType = strings.ToUpper(p.FSType)
	p.State = strings.ToLower(p.State)
	if p.State == "" {
		p.State = StateMounted
	}
	p.UnmountOpts = strings.ToUpper(p.UnmountOpts)
	if p.UnmountOpts == "" {
		p.UnmountOpts = mount.UnmountNormal
	}
	for i, o := range p.MountOpts {
		p.MountOpts[i] = strings.ToLower(o)
	}
	if len(p.MountOpts) == 0 {
		p.MountOpts = ansible.StringList{"rw"}
	}
	p.TagUntagged = strings.ToUpper(p.TagUntagged)
	p.Automove = strings.ToUpper(p.Automove)
	if p.Automove == "" {
		p.Automove = "AUTOMOVE"
	}
	if p.AllowUID == nil {
		allow := ansible.Bool(true)
		p.AllowUID = &allow
	}
	if p.Persistent != nil {
		p.Persistent.DataSetName = strings.ToUpper(p.Persistent.DataSetName)
		p.Persistent.BackupName = strings.ToUpper(p.Persistent.BackupName)
		if len(p.Persistent.Comment) == 0 {
			p.Persistent.Comment = p.TabComment
		}
	}
}

// validate checks the normalized parameters
func (p *MountParams) validate() error {
	if err := validation.ValidateDataSetName(p.Src); err != nil {
		return ansible.ParamErrorf("src: %v", err)
	}
	if !slices.Contains(mountStates, p.State) {
		return ansible.ParamErrorf("state must be one of %s, got %q", strings.Join(mountStates, ", "), p.State)
	}

	needsTarget := p.State == StateMounted || p.State == StatePresent || p.State == StateRemounted
	if p.Path == "" && needsTarget {
		return ansible.ParamErrorf("path is required when state is %s", p.State)
	}
	if p.Path != "" {
		if err := validation.ValidateMountPoint(p.Path); err != nil {
			return ansible.ParamErrorf("path: %v", err)
		}
	}
	if p.FSType == "" && needsTarget {
		return ansible.ParamErrorf("fs_type is required when state is %s", p.State)
	}
	if p.FSType != "" && !slices.Contains(fsTypes, p.FSType) {
		return ansible.ParamErrorf("fs_type must be one of %s, got %q", strings.Join(fsTypes, ", "), p.FSType)
	}

	if !slices.Contains(mount.UnmountOptions, p.UnmountOpts) {
		return ansible.ParamErrorf("unmount_opts must be one of %s, got %q", strings.Join(mount.UnmountOptions, ", "), p.UnmountOpts)
	}
	for _, o := range p.MountOpts {
		if !slices.Contains(mountOptions, o) {
			return ansible.ParamErrorf("mount_opts must be some of %s, got %q", strings.Join(mountOptions, ", "), o)
		}
	}
	if slices.Contains(p.MountOpts, "ro") && slices.Contains(p.MountOpts, "rw") {
		return ansible.ParamErrorf("mount_opts must not contain both ro and rw")
	}

	if !slices.Contains(tagOptions, p.TagUntagged) {
		return ansible.ParamErrorf("tag_untagged must be TEXT or NOTEXT, got %q", p.TagUntagged)
	}
	if p.TagUntagged != "" && p.TagCCSID == nil {
		return ansible.ParamErrorf("tag_ccsid is required when tag_untagged is set")
	}
	if err := validation.ValidateSysName(p.SysName); err != nil {
		return ansible.ParamErrorf("sysname: %v", err)
	}
	if !slices.Contains(automoveModes, p.Automove) {
		return ansible.ParamErrorf("automove must be one of %s, got %q", strings.Join(automoveModes, ", "), p.Automove)
	}

	if p.Persistent != nil {
		if err := validation.ValidateMemberRef(p.Persistent.DataSetName); err != nil {
			return ansible.ParamErrorf("persistent.data_set_name: %v", err)
		}
		if b := p.Persistent.BackupName; b != "" {
			if err := validateBackupName(b); err != nil {
				return ansible.ParamErrorf("persistent.backup_name: %v", err)
			}
		}
		for _, c := range p.Persistent.Comment {
			if strings.Contains(c, "*/") {
				return ansible.ParamErrorf("persistent.comment must not contain */")
			}
		}
	}

	return nil
}

// validateBackupName accepts either a member name or DSN(MEMBER)
func validateBackupName(name string) error {
	if _, _, ok := validation.SplitMember(name); ok {
		return validation.ValidateMemberRef(name)
	}
	return validation.ValidateMemberName(name)
}

// statement builds the MOUNT statement from the normalized parameters
func (p *MountParams) statement() bpxprm.MountStatement {
	stmt := bpxprm.MountStatement{
		Source:       p.Src,
		MountPoint:   p.Path,
		FSType:       p.FSType,
		ReadOnly:     slices.Contains(p.MountOpts, "ro"),
		Parm:         p.SrcParams,
		Tag:          p.TagUntagged,
		SetUID:       bool(*p.AllowUID),
		NoWait:       slices.Contains(p.MountOpts, "nowait"),
		NoSecurity:   slices.Contains(p.MountOpts, "nosecurity"),
		SysName:      p.SysName,
		Automove:     p.Automove,
		AutomoveList: p.AutomoveList,
	}
	if p.TagCCSID != nil {
		stmt.TagCCSID = int(*p.TagCCSID)
	}
	return stmt
}

// unmountOption returns the UNMOUNT option, resolving REMOUNT to the mode
// the file system is remounted in
func (p *MountParams) unmountOption() string {
	if p.UnmountOpts != mount.UnmountRemount {
		return p.UnmountOpts
	}
	switch {
	case slices.Contains(p.MountOpts, "same"):
		return "REMOUNT(SAME)"
	case slices.Contains(p.MountOpts, "ro"):
		return "REMOUNT(READ)"
	default:
		return "REMOUNT(RDWR)"
	}
}

func (p *MountParams) result() *MountResult {
	res := &MountResult{
		Path:         p.Path,
		Src:          p.Src,
		FSType:       p.FSType,
		State:        p.State,
		TabComment:   []string(p.TabComment),
		UnmountOpts:  p.UnmountOpts,
		MountOpts:    []string(p.MountOpts),
		SrcParams:    p.SrcParams,
		TagUntagged:  p.TagUntagged,
		SysName:      p.SysName,
		Automove:     p.Automove,
		AutomoveList: p.AutomoveList,
		AllowUID:     p.AllowUID == nil || bool(*p.AllowUID),
	}
	if p.TagCCSID != nil {
		res.TagCCSID = int(*p.TagCCSID)
	}
	if res.TabComment == nil {
		res.TabComment = []string{}
	}
	if p.Persistent != nil {
		res.PersistentDS = p.Persistent.DataSetName
		res.Backup = bool(p.Persistent.Backup)
		res.TabComment = []string(p.Persistent.Comment)
		if res.TabComment == nil {
			res.TabComment = []string{}
		}
	}
	return res
}

// record copies a command outcome into the result
func (r *MountResult) record(cmd *host.Result) {
	if cmd == nil {
		return
	}
	r.Cmd = cmd.Cmd
	r.RC = cmd.RC
	r.Stdout = cmd.Stdout
	r.Stderr = cmd.Stderr
}

// Run applies the requested mount state. On failure the partial result is
// returned along with the error.
func (m *MountModule) Run(ctx context.Context, common *ansible.Common, p *MountParams) (*MountResult, error) {
	p.normalize()
	res := p.result()

	if err := p.validate(); err != nil {
		return res, err
	}

	log.Debug("running zos_mount", "src", p.Src, "path", p.Path, "state", p.State, "check_mode", common.CheckMode)

	exists, err := m.zoau.Exists(ctx, p.Src)
	if err != nil {
		return res, fmt.Errorf("check mount source: %w", err)
	}
	if !exists {
		return res, fmt.Errorf("Mount source (%s) doesn't exist", p.Src)
	}

	mounted, err := mount.MountedAt(ctx, m.mounter, p.Src, p.Path)
	if err != nil {
		if errors.Is(err, mount.ErrMountedElsewhere) {
			return res, fmt.Errorf("Mount source (%s) is already mounted on another path: %w", p.Src, err)
		}
		return res, err
	}

	if err := m.applyState(ctx, common, p, res, mounted); err != nil {
		return res, err
	}

	if p.Persistent != nil && p.State != StateUnmounted {
		changed, err := m.persist(ctx, common, p, res)
		if err != nil {
			return res, err
		}
		res.Changed = res.Changed || changed
	}

	log.Info("zos_mount finished", "src", p.Src, "state", p.State, "changed", res.Changed)
	return res, nil
}

// applyState mounts or unmounts the file system as the state requires
func (m *MountModule) applyState(ctx context.Context, common *ansible.Common, p *MountParams, res *MountResult, mounted bool) error {
	stmt := p.statement()

	switch p.State {
	case StateMounted:
		if mounted {
			res.Comment = "already mounted"
			return nil
		}
		return m.mount(ctx, common, stmt, res)

	case StateRemounted:
		if mounted {
			if err := m.unmount(ctx, common, p, res); err != nil {
				return err
			}
		}
		return m.mount(ctx, common, stmt, res)

	case StateUnmounted, StateAbsent:
		if !mounted {
			res.Comment = "not mounted"
			return nil
		}
		return m.unmount(ctx, common, p, res)
	}

	return nil
}

func (m *MountModule) mount(ctx context.Context, common *ansible.Common, stmt bpxprm.MountStatement, res *MountResult) error {
	res.Changed = true

	if common.CheckMode {
		res.Cmd = host.CommandLine("tsocmd", stmt.Command())
		res.Stdout = ansible.CheckModeMessage
		return nil
	}

	busy, err := m.mounter.IsMounted(ctx, stmt.MountPoint)
	if err != nil {
		return fmt.Errorf("check mount destination: %w", err)
	}
	if busy {
		return fmt.Errorf("Mount destination (%s) is in use by another file system", stmt.MountPoint)
	}

	if err := m.prepareMountPoint(ctx, stmt.MountPoint); err != nil {
		return err
	}

	out, err := m.mounter.Mount(ctx, stmt)
	res.record(out)
	return err
}

func (m *MountModule) unmount(ctx context.Context, common *ansible.Common, p *MountParams, res *MountResult) error {
	res.Changed = true

	if common.CheckMode {
		res.Cmd = host.CommandLine("tsocmd", mount.UnmountCommand(p.Src, p.unmountOption()))
		res.Stdout = ansible.CheckModeMessage
		return nil
	}

	out, err := m.mounter.Unmount(ctx, p.Src, p.unmountOption())
	res.record(out)
	return err
}

// prepareMountPoint creates the mount point directory when it is missing
func (m *MountModule) prepareMountPoint(ctx context.Context, path string) error {
	exists, err := m.host.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("stat mount point: %w", err)
	}
	if exists {
		return nil
	}

	log.Debug("creating mount point", "path", path)
	if err := m.host.MkdirAll(ctx, path); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	return nil
}

// persist rewrites the managed block in the persistent member. It reports
// whether the member changed.
func (m *MountModule) persist(ctx context.Context, common *ansible.Common, p *MountParams, res *MountResult) (bool, error) {
	member := p.Persistent.DataSetName

	exists, err := m.zoau.Exists(ctx, member)
	if err != nil {
		return false, fmt.Errorf("check persistent data set: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("Persistent data set (%s) doesn't exist", member)
	}

	dsn, _, _ := validation.SplitMember(member)
	ds, err := m.zoau.Describe(ctx, dsn)
	if err != nil {
		return false, fmt.Errorf("describe persistent data set: %w", err)
	}
	if !ds.IsPartitioned() {
		return false, fmt.Errorf("Persistent data set (%s) is not partitioned, found DSORG %s", dsn, ds.DSOrg)
	}

	lines, err := m.zoau.ReadText(ctx, member)
	if err != nil {
		return false, err
	}

	// a requested backup is taken even when the member ends up unchanged
	if bool(p.Persistent.Backup) && !common.CheckMode {
		backup := backupName(member, p.Persistent.BackupName)
		if err := m.zoau.Copy(ctx, member, backup); err != nil {
			return false, fmt.Errorf("backup persistent data set: %w", err)
		}
		res.BackupName = backup
		log.Info("persistent data set backed up", "member", member, "backup", backup)
	}

	var block string
	if p.State != StateAbsent {
		block = bpxprm.BuildBlock(p.statement(), p.Persistent.Comment, m.now())
	}

	if upToDate(lines, p.Src, block) {
		log.Debug("persistent block up to date", "member", member)
		return false, nil
	}

	updated := bpxprm.Apply(lines, p.Src, block)
	if slices.Equal(updated, lines) {
		return false, nil
	}

	if common.CheckMode {
		return true, nil
	}

	if err := m.zoau.WriteText(ctx, member, updated); err != nil {
		return false, err
	}

	log.Info("persistent data set updated", "member", member, "src", p.Src)
	return true, nil
}

// upToDate reports whether lines already hold exactly the wanted block for
// resource, ignoring marker timestamps. An empty block is up to date when
// no block exists.
func upToDate(lines []string, resource, block string) bool {
	spans := bpxprm.Find(lines, resource)
	if block == "" {
		return len(spans) == 0
	}
	if len(spans) != 1 {
		return false
	}
	return bpxprm.Equivalent(bpxprm.Extract(lines, spans[0]), strings.Split(block, "\n"))
}

// backupName resolves the backup member for member. An empty name picks the
// first five characters of the member followed by BAK; a bare member name
// stays in the same data set.
func backupName(member, name string) string {
	dsn, mem, _ := validation.SplitMember(member)
	if name == "" {
		if len(mem) > 5 {
			mem = mem[:5]
		}
		return fmt.Sprintf("%s(%sBAK)", dsn, mem)
	}
	if _, _, ok := validation.SplitMember(name); ok {
		return name
	}
	return fmt.Sprintf("%s(%s)", dsn, name)
}
