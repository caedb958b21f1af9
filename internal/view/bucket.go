package view

import "sync"

// Bucket is a named projection of the dataset driving one visual series.
// X, Y, Size, Country and Region are parallel and always of equal length.
// A published Bucket is never modified; updates replace it.
type Bucket struct {
	Name    string
	X       []float64
	Y       []float64
	Size    []float64
	Country []string
	Region  []string
}

func newBucket(name string, capacity int) *Bucket {
	return &Bucket{
		Name:    name,
		X:       make([]float64, 0, capacity),
		Y:       make([]float64, 0, capacity),
		Size:    make([]float64, 0, capacity),
		Country: make([]string, 0, capacity),
		Region:  make([]string, 0, capacity),
	}
}

func (b *Bucket) append(x, y, size float64, country, region string) {
	b.X = append(b.X, x)
	b.Y = append(b.Y, y)
	b.Size = append(b.Size, size)
	b.Country = append(b.Country, country)
	b.Region = append(b.Region, region)
}

// Len returns the number of rows in the bucket.
func (b *Bucket) Len() int {
	return len(b.X)
}

// BucketSet holds the current buckets of one view. Replace swaps the whole
// set at once, so a Snapshot is either entirely old or entirely new.
type BucketSet struct {
	mu      sync.RWMutex
	buckets []*Bucket
}

// NewBucketSet returns a set of empty buckets with the given names.
func NewBucketSet(names []string) *BucketSet {
	bs := make([]*Bucket, len(names))
	for i, n := range names {
		bs[i] = newBucket(n, 0)
	}
	return &BucketSet{buckets: bs}
}

// Snapshot returns the current buckets.
func (s *BucketSet) Snapshot() []*Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets
}

// Replace installs buckets as the new contents.
func (s *BucketSet) Replace(buckets []*Bucket) {
	s.mu.Lock()
	s.buckets = buckets
	s.mu.Unlock()
}
