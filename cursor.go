package pix2pix_go

import (
	"fmt"
	"math/rand"
)

// Cursor Walks over shuffled permutation of dataset indices minibatch by minibatch.
//
// When remaining part of permutation is shorter than requested minibatch, the batch is completed
// with the head of a freshly shuffled permutation and position continues from there.
//
type Cursor struct {
	rng  *rand.Rand
	perm []int
	pos  int
}

// NewCursor Constructor for Cursor
//
// n - number of samples in dataset
// rng - source of shuffling
//
func NewCursor(n int, rng *rand.Rand) (*Cursor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("Cursor needs non-empty dataset, got %d samples", n)
	}
	c := &Cursor{
		rng:  rng,
		perm: make([]int, n),
	}
	for i := range c.perm {
		c.perm[i] = i
	}
	c.shuffle()
	return c, nil
}

func (c *Cursor) shuffle() {
	c.rng.Shuffle(len(c.perm), func(i, j int) {
		c.perm[i], c.perm[j] = c.perm[j], c.perm[i]
	})
}

// Position Returns index of next unread element of current permutation
func (c *Cursor) Position() int {
	return c.pos
}

// Next Returns indices of next minibatch
func (c *Cursor) Next(size int) ([]int, error) {
	n := len(c.perm)
	if size <= 0 || size > n {
		return nil, fmt.Errorf("Minibatch size must be in [1, %d], got %d", n, size)
	}
	batch := make([]int, 0, size)
	if c.pos+size > n {
		batch = append(batch, c.perm[c.pos:]...)
		c.shuffle()
		rest := size - (n - c.pos)
		batch = append(batch, c.perm[:rest]...)
		c.pos = rest
		return batch, nil
	}
	batch = append(batch, c.perm[c.pos:c.pos+size]...)
	c.pos += size
	return batch, nil
}
