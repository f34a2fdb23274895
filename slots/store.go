package slots

import (
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"k8s.io/klog/v2"
)

// Keys of the catalog blob. The blob is a google.protobuf.Struct, with one list of strings per slot.
const (
	blobValuesKey      = "values"
	blobOccurrencesKey = "occurrences"
)

// DefaultDirCreationPerm is used when creating the directory of a catalog file.
var DefaultDirCreationPerm = os.FileMode(0755)

// Marshal encodes the catalog as an opaque binary blob.
func (c *Catalog) Marshal() ([]byte, error) {
	values := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(c.values))}
	occurrences := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(c.occurrences))}
	for slot, vs := range c.values {
		values.Fields[slot] = stringList(vs)
		occurrences.Fields[slot] = stringList(c.occurrences[slot])
	}
	blob := &structpb.Struct{Fields: map[string]*structpb.Value{
		blobValuesKey:      structpb.NewStructValue(values),
		blobOccurrencesKey: structpb.NewStructValue(occurrences),
	}}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(blob)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal slot catalog")
	}
	return data, nil
}

// Unmarshal decodes a blob created by Catalog.Marshal.
func Unmarshal(data []byte) (*Catalog, error) {
	var blob structpb.Struct
	if err := proto.Unmarshal(data, &blob); err != nil {
		return nil, errors.Wrap(err, "failed to parse slot catalog blob")
	}
	values := blob.GetFields()[blobValuesKey].GetStructValue()
	if values == nil {
		return nil, errors.Errorf("slot catalog blob has no %q entry", blobValuesKey)
	}
	occurrences := blob.GetFields()[blobOccurrencesKey].GetStructValue().GetFields()

	c := NewCatalog()
	for slot, v := range values.GetFields() {
		list := v.GetListValue()
		if list == nil {
			return nil, errors.Errorf("slot %q in catalog blob is not a list", slot)
		}
		// Replaying the occurrences in order restores both the first-seen order and the counts.
		replay := list
		if occ := occurrences[slot].GetListValue(); occ != nil && len(occ.GetValues()) > 0 {
			replay = occ
		}
		if len(replay.GetValues()) == 0 {
			c.seen[slot] = make(map[string]struct{})
			c.values[slot] = nil
		}
		for _, sv := range replay.GetValues() {
			c.Observe(slot, sv.GetStringValue())
		}
	}
	return c, nil
}

func stringList(vs []string) *structpb.Value {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(vs))}
	for ii, v := range vs {
		list.Values[ii] = structpb.NewStringValue(v)
	}
	return structpb.NewListValue(list)
}

// Save writes the catalog to filePath.
//
// It writes to filePath+".writing" and then atomically moves it to filePath, holding the lock
// file filePath+".lock" to coordinate with other processes saving to the same path.
func Save(filePath string, c *Catalog) error {
	filePath = files.ExpandHome(filePath)
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(lockPath, func() {
		tmpPath := filePath + ".writing"
		if err := os.WriteFile(tmpPath, data, 0644); err != nil {
			mainErr = errors.Wrapf(err, "failed to write temporary catalog file %q", tmpPath)
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
			}
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move catalog file %q to %q", tmpPath, filePath)
			return
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to save %q", lockPath, filePath)
	}
	return nil
}

// Load reads a catalog saved with Save.
func Load(filePath string) (*Catalog, error) {
	filePath = files.ExpandHome(filePath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read slot catalog %q", filePath)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "slot catalog %q", filePath)
	}
	return c, nil
}

// execOnFileLock opens the lockPath file (or creates if it doesn't yet exist), locks it, and executes the function.
// If the lockPath is already locked, it polls with a 100 to 200 milliseconds period (randomly), until it acquires the lock.
//
// The lockPath is not removed.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(100+rand.Intn(100)))
	}

	// Setup clean up in a deferred function, so it happens even if `fn()` panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()

	fn()
	return
}
