// Package snapshot takes and restores point-in-time copies of the NAS
// certificate stores.
//
// # Layout
//
// Every snapshot lives in its own directory under the backup root:
//
//	backup/
//	├── 20261019-103045/
//	│   ├── manifest.yaml
//	│   ├── syno/          copy of /usr/syno/etc/certificate
//	│   └── pkg/           copy of /usr/local/etc/certificate
//	└── latest             contains "20261019-103045"
//
// A snapshot is assembled in a hidden staging directory and renamed into
// place once every store has been copied, so a directory carrying a snapshot
// id is always complete. The latest pointer is replaced atomically and only
// after the rename.
//
// # Restore
//
// Restore copies each store out of the snapshot into a sibling of the live
// directory and swaps the two with renames, primary store first. If a later
// store fails, stores already swapped are put back, so the live state is
// either fully restored or unchanged.
package snapshot
