package vfs

import "context"

// Shrink evicts unreferenced inodes with no dirty or in-flight pages,
// oldest first. Their clean pages go with them; on-disk data is kept.
func (fs *Filesystem) Shrink(ctx context.Context) (int, error) {
	release, err := fs.Hold()
	if err != nil {
		return 0, nil
	}
	defer release()

	fs.mu.Lock()
	var victims []*Inode
	for e := fs.inodes.Back(); e != nil; e = e.Prev() {
		ino := e.Value.(*Inode)
		ino.mu.Lock()
		if ino.refs == 0 && !ino.state.Unstable() {
			st := ino.mapping.Stats()
			if st.Dirty == 0 && st.Writeback == 0 {
				ino.state |= StateFreeing
				victims = append(victims, ino)
			}
		}
		ino.mu.Unlock()
	}
	fs.mu.Unlock()

	for _, ino := range victims {
		fs.evict(ctx, ino)
	}
	return len(victims), nil
}

var _ Shrinker = (*Filesystem)(nil)
