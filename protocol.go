package stratum

import (
	"encoding/json"
	"fmt"
)

// stratumMethod enumerates the wire methods this client speaks. Anything
// else arriving from the server is logged and ignored.
type stratumMethod string

const (
	methodSubscribe         stratumMethod = "mining.subscribe"
	methodAuthorize         stratumMethod = "mining.authorize"
	methodSubmit            stratumMethod = "mining.submit"
	methodSuggestDifficulty stratumMethod = "mining.suggest_difficulty"
	methodNotify            stratumMethod = "mining.notify"
	methodSetDifficulty     stratumMethod = "mining.set_difficulty"
	methodSetExtranonce     stratumMethod = "mining.set_extranonce"
	methodReconnect         stratumMethod = "client.reconnect"
)

// JobNotification is a parsed mining.notify. Hex fields are kept as
// received; the job builder validates and decodes them.
type JobNotification struct {
	JobID        string
	PrevHash     string
	Coinb1       string
	Coinb2       string
	MerkleBranch []string
	BlockVersion string
	NBits        string
	NTime        string
	CleanJobs    bool
}

// jobSnapshot is the (extranonce1, extranonce2_size) pair captured when a
// notification was accepted. Submissions format extranonce2 against the
// snapshot, not the live state, so a late set_extranonce cannot corrupt an
// in-flight share.
type jobSnapshot struct {
	extranonce1     string
	extranonce2Size int
}

// JobResult carries a solved nonce back toward the pool. A result is empty
// iff JobID is empty.
type JobResult struct {
	WorkerName      string
	JobID           string
	NTime           uint32
	Nonce           uint32
	Extranonce2     uint32
	Extranonce2Size uint32
}

// Empty reports whether the result identifies no job.
func (r JobResult) Empty() bool {
	return r.JobID == ""
}

// protoState is the protocol-level mutable state. It is owned exclusively
// by the I/O task; the facade keeps an eventually consistent mirror fed by
// state events.
type protoState struct {
	extranonce1     string
	extranonce2Size int
	extranonce2     uint32
	difficulty      float64
	current         *JobNotification
	jobs            map[string]jobSnapshot
}

func newProtoState() protoState {
	return protoState{
		difficulty: 1.0,
		jobs:       make(map[string]jobSnapshot, 8),
	}
}

// applyNotify folds a mining.notify into the state: clean_jobs clears the
// job table first, the new job is recorded against the current extranonce
// snapshot, and a job change resets the extranonce2 counter.
func (s *protoState) applyNotify(n *JobNotification) jobSnapshot {
	if n.CleanJobs {
		clear(s.jobs)
	}
	prevID := ""
	if s.current != nil {
		prevID = s.current.JobID
	}
	s.current = n
	snap := jobSnapshot{extranonce1: s.extranonce1, extranonce2Size: s.extranonce2Size}
	s.jobs[n.JobID] = snap
	if n.JobID != prevID {
		s.extranonce2 = 0
	}
	return snap
}

func (s *protoState) applySetDifficulty(d float64) {
	s.difficulty = d
}

func (s *protoState) applySetExtranonce(extranonce1 string, size int) {
	s.extranonce1 = extranonce1
	s.extranonce2Size = size
	s.extranonce2 = 0
}

// applySubscribe records the pool-assigned extranonce from the subscribe
// response. The counter starts over.
func (s *protoState) applySubscribe(extranonce1 string, size int) {
	s.extranonce1 = extranonce1
	s.extranonce2Size = size
	s.extranonce2 = 0
}

func (s *protoState) snapshotFor(jobID string) (jobSnapshot, bool) {
	snap, ok := s.jobs[jobID]
	return snap, ok
}

// parseNotifyParams decodes the nine mining.notify params.
func parseNotifyParams(raw json.RawMessage) (*JobNotification, error) {
	var fields []json.RawMessage
	if err := fastJSONUnmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("notify params: %w", err)
	}
	if len(fields) < 9 {
		return nil, fmt.Errorf("notify params: want 9 fields, got %d", len(fields))
	}

	n := &JobNotification{}
	strs := []struct {
		dst  *string
		name string
		idx  int
	}{
		{&n.JobID, "job_id", 0},
		{&n.PrevHash, "prev_hash", 1},
		{&n.Coinb1, "coinb1", 2},
		{&n.Coinb2, "coinb2", 3},
		{&n.BlockVersion, "version", 5},
		{&n.NBits, "nbits", 6},
		{&n.NTime, "ntime", 7},
	}
	for _, f := range strs {
		if err := fastJSONUnmarshal(fields[f.idx], f.dst); err != nil {
			return nil, fmt.Errorf("notify %s: %w", f.name, err)
		}
	}
	if err := fastJSONUnmarshal(fields[4], &n.MerkleBranch); err != nil {
		return nil, fmt.Errorf("notify merkle_branch: %w", err)
	}
	if err := fastJSONUnmarshal(fields[8], &n.CleanJobs); err != nil {
		return nil, fmt.Errorf("notify clean_jobs: %w", err)
	}
	if len(n.BlockVersion) != 8 || len(n.NBits) != 8 || len(n.NTime) != 8 {
		return nil, fmt.Errorf("notify version/nbits/ntime must be 8 hex chars")
	}
	if n.JobID == "" {
		return nil, fmt.Errorf("notify job_id empty")
	}
	return n, nil
}

// parseSetDifficultyParams accepts either a JSON integer or floating value
// as the single difficulty param.
func parseSetDifficultyParams(raw json.RawMessage) (float64, error) {
	var fields []json.Number
	if err := fastJSONUnmarshal(raw, &fields); err != nil {
		return 0, fmt.Errorf("set_difficulty params: %w", err)
	}
	if len(fields) < 1 {
		return 0, fmt.Errorf("set_difficulty params: empty")
	}
	d, err := fields[0].Float64()
	if err != nil {
		return 0, fmt.Errorf("set_difficulty value: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("set_difficulty value %v out of range", d)
	}
	return d, nil
}

// parseSetExtranonceParams decodes [extranonce1, extranonce2_size].
func parseSetExtranonceParams(raw json.RawMessage) (string, int, error) {
	var fields []json.RawMessage
	if err := fastJSONUnmarshal(raw, &fields); err != nil {
		return "", 0, fmt.Errorf("set_extranonce params: %w", err)
	}
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("set_extranonce params: want 2 fields, got %d", len(fields))
	}
	var extranonce1 string
	if err := fastJSONUnmarshal(fields[0], &extranonce1); err != nil {
		return "", 0, fmt.Errorf("set_extranonce extranonce1: %w", err)
	}
	var size int
	if err := fastJSONUnmarshal(fields[1], &size); err != nil {
		return "", 0, fmt.Errorf("set_extranonce extranonce2_size: %w", err)
	}
	if size <= 0 || size > 32 {
		return "", 0, fmt.Errorf("set_extranonce extranonce2_size %d out of range", size)
	}
	return extranonce1, size, nil
}

// parseSubscribeResult decodes [subscriptions, extranonce1,
// extranonce2_size] from a mining.subscribe response.
func parseSubscribeResult(raw json.RawMessage) (string, int, error) {
	var fields []json.RawMessage
	if err := fastJSONUnmarshal(raw, &fields); err != nil {
		return "", 0, fmt.Errorf("subscribe result: %w", err)
	}
	if len(fields) < 3 {
		return "", 0, fmt.Errorf("subscribe result: want 3 fields, got %d", len(fields))
	}
	var extranonce1 string
	if err := fastJSONUnmarshal(fields[1], &extranonce1); err != nil {
		return "", 0, fmt.Errorf("subscribe extranonce1: %w", err)
	}
	var size int
	if err := fastJSONUnmarshal(fields[2], &size); err != nil {
		return "", 0, fmt.Errorf("subscribe extranonce2_size: %w", err)
	}
	if size <= 0 || size > 32 {
		return "", 0, fmt.Errorf("subscribe extranonce2_size %d out of range", size)
	}
	return extranonce1, size, nil
}

// parseBoolResult decodes the boolean payload of authorize and submit
// responses. A null result counts as false.
func parseBoolResult(raw json.RawMessage) (bool, error) {
	if !isNonNull(raw) {
		return false, nil
	}
	var v bool
	if err := fastJSONUnmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("boolean result: %w", err)
	}
	return v, nil
}

// Request param builders. Submission formatting uses the job table
// snapshot so extranonce2 is padded against the size that was live when the
// job arrived.

func subscribeParams(userAgent string) []any {
	return []any{userAgent}
}

func authorizeParams(worker, password string) []any {
	return []any{worker, password}
}

func suggestDifficultyParams(d float64) []any {
	return []any{d}
}

func submitParams(res JobResult, snap jobSnapshot) []any {
	return []any{
		res.WorkerName,
		res.JobID,
		extranonce2Hex(res.Extranonce2, snap.extranonce2Size),
		uint32ToLEHex(res.NTime),
		uint32ToLEHex(res.Nonce),
	}
}
