package robot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/asdine/storm/v3"

	"github.com/gwillem/cobot/pkg/servo"
)

// ErrNotCalibrated is returned by Store.Load for a joint without a record.
var ErrNotCalibrated = errors.New("joint not calibrated")

// CalibrationRecord is the persisted calibration table of one joint.
type CalibrationRecord struct {
	Joint    JointName `storm:"id"`
	Channel  int
	Angles   []int
	Feedback []int
	Updated  time.Time
}

// NewCalibrationRecord snapshots the table of a calibrated actuator.
func NewCalibrationRecord(name JointName, a *servo.Actuator) CalibrationRecord {
	t := a.CalibrationTable()
	return CalibrationRecord{
		Joint:    name,
		Channel:  a.Channel(),
		Angles:   t.Angles(),
		Feedback: t.Feedback(),
	}
}

// Table rebuilds the calibration table.
func (r CalibrationRecord) Table() (servo.CalibrationTable, error) {
	if len(r.Angles) != len(r.Feedback) {
		return nil, fmt.Errorf("%w: %d angles, %d anchors", servo.ErrCalibrationSize, len(r.Angles), len(r.Feedback))
	}
	t := make(servo.CalibrationTable, len(r.Angles))
	for i := range r.Angles {
		t[i] = servo.CalibrationPoint{Angle: r.Angles[i], Feedback: r.Feedback[i]}
	}
	return t, nil
}

// Apply installs the record on an actuator.
func (r CalibrationRecord) Apply(a *servo.Actuator) error {
	t, err := r.Table()
	if err != nil {
		return err
	}
	if err := a.SetCalibrationTable(t); err != nil {
		return fmt.Errorf("apply calibration of %s: %w", r.Joint, err)
	}
	return nil
}

// Store keeps calibration records in a bolt database.
type Store struct {
	db *storm.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := storm.Open(path, storm.BoltOptions(0600, nil))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.Init(&CalibrationRecord{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores or replaces the record of r.Joint.
func (s *Store) Save(r CalibrationRecord) error {
	if r.Updated.IsZero() {
		r.Updated = time.Now()
	}
	if err := s.db.Save(&r); err != nil {
		return fmt.Errorf("save calibration of %s: %w", r.Joint, err)
	}
	return nil
}

// Load returns the record of a joint.
func (s *Store) Load(name JointName) (CalibrationRecord, error) {
	var r CalibrationRecord
	if err := s.db.One("Joint", name, &r); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return r, fmt.Errorf("%w: %s", ErrNotCalibrated, name)
		}
		return r, fmt.Errorf("load calibration of %s: %w", name, err)
	}
	return r, nil
}

// All returns every record ordered by channel.
func (s *Store) All() ([]CalibrationRecord, error) {
	var rs []CalibrationRecord
	if err := s.db.All(&rs); err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Channel < rs[j].Channel })
	return rs, nil
}

// Delete removes the record of a joint.
func (s *Store) Delete(name JointName) error {
	r, err := s.Load(name)
	if err != nil {
		return err
	}
	if err := s.db.DeleteStruct(&r); err != nil {
		return fmt.Errorf("delete calibration of %s: %w", name, err)
	}
	return nil
}
