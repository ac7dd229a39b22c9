package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Counting(t *testing.T) {
	s := NewStats()

	s.MessageReceived(TopicCVData)
	s.MessageReceived(TopicCVData)
	s.MessageReceived(TopicHeartRate)
	s.MessageProcessed()
	s.MessageFailed()
	s.DataPointsSaved(3)

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.Received)
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(3), snap.DataPointsSaved)
	assert.Equal(t, int64(2), snap.ByTopic[TopicCVData])
	assert.Equal(t, int64(1), snap.ByTopic[TopicHeartRate])
}

func TestStats_SnapshotIsCopy(t *testing.T) {
	s := NewStats()
	s.MessageReceived(TopicSpO2)

	snap := s.Snapshot()
	snap.ByTopic[TopicSpO2] = 99

	assert.Equal(t, int64(1), s.Snapshot().ByTopic[TopicSpO2])
}

func TestStats_ConcurrentUpdates(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.MessageReceived(TopicStress)
			s.MessageProcessed()
			s.DataPointsSaved(1)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(100), snap.Received)
	assert.Equal(t, int64(100), snap.Processed)
	assert.Equal(t, int64(100), snap.DataPointsSaved)
	assert.Equal(t, int64(100), snap.ByTopic[TopicStress])
}
