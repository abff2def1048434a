package syncer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

// ProbeText is the text of the task Diagnose writes and removes again.
const ProbeText = "tasksync connectivity probe"

// Report is the result of a diagnostic run against the remote store.
type Report struct {
	Scope      string        `json:"scope,omitempty"`
	IdentityOK bool          `json:"identityOk"`
	ListOK     bool          `json:"listOk"`
	TaskCount  int           `json:"taskCount"`
	WriteOK    bool          `json:"writeOk"`
	CleanupOK  bool          `json:"cleanupOk"`
	Online     bool          `json:"online"`
	Elapsed    time.Duration `json:"elapsed"`
	Errors     []string      `json:"errors,omitempty"`
}

// OK reports whether every step passed.
func (r Report) OK() bool {
	return r.IdentityOK && r.ListOK && r.WriteOK && r.CleanupOK
}

// Diagnose checks the remote path end to end: it resolves the scope, lists
// the tasks, writes a probe task and deletes it. The cache is never touched.
func (o *Orchestrator) Diagnose(ctx context.Context) Report {
	ctx = detach(ctx)
	start := time.Now()
	var rep Report
	defer func() {
		o.logger.WithFields(log.Fields{
			"scope":   rep.Scope,
			"ok":      rep.OK(),
			"elapsed": rep.Elapsed,
		}).Info("diagnostics finished")
	}()
	fail := func(step string, err error) Report {
		o.classify(step, err)
		rep.Errors = append(rep.Errors, step+": "+err.Error())
		rep.Online = o.Online()
		rep.Elapsed = time.Since(start)
		return rep
	}

	r, err := o.remoteFor(ctx)
	if err != nil {
		return fail("identity", err)
	}
	rep.IdentityOK = true
	rep.Scope = r.Scope().Key()

	tasks, err := r.List(ctx)
	if err != nil {
		return fail("list", err)
	}
	o.classify("list", nil)
	rep.ListOK = true
	rep.TaskCount = len(tasks)

	id, err := r.Create(ctx, domain.TaskInput{Text: ProbeText, Priority: domain.PriorityLow})
	if err != nil {
		return fail("write", err)
	}
	o.classify("add", nil)
	rep.WriteOK = true

	if err := r.Delete(ctx, id); err != nil {
		return fail("cleanup", err)
	}
	o.classify("delete", nil)
	rep.CleanupOK = true
	rep.Online = o.Online()
	rep.Elapsed = time.Since(start)
	return rep
}
