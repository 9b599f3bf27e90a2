package mounttable

// Entry is one file system listed by the z/OS UNIX df command
type Entry struct {
	MountPoint string
	// Filesystem is the data set name backing the mount
	Filesystem string
	// Avail and Total are in 512-byte blocks as reported by df
	Avail  uint64
	Total  uint64
	Status string
}
