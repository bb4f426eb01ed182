package growthkit

import (
	"context"
	"strconv"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/TimurManjosov/growthkit/stickybucket"
)

// stickyAttributeRefs lists the identifying attributes whose stored
// assignments apply to this user. The experiment's own hash attribute comes
// last so its document wins merge conflicts.
func (c *Client) stickyAttributeRefs(snap snapshot, attrName, hashValue string) []stickybucket.AttributeRef {
	refs := make([]stickybucket.AttributeRef, 0, len(c.stickyAttrs)+1)
	for _, name := range c.stickyAttrs {
		if name == attrName {
			continue
		}
		if value := stringifyAttribute(snap.attributes[name]); value != "" {
			refs = append(refs, stickybucket.AttributeRef{Name: name, Value: value})
		}
	}
	if hashValue != "" {
		refs = append(refs, stickybucket.AttributeRef{Name: attrName, Value: hashValue})
	}
	return refs
}

// stickyVariation looks up a persisted assignment for the experiment.
// blocked=true means the user holds an assignment from a bucket version
// below the experiment's minimum and must not be re-bucketed.
func (c *Client) stickyVariation(snap snapshot, exp *payload.Experiment, attrName, hashValue string) (int, bool) {
	refs := c.stickyAttributeRefs(snap, attrName, hashValue)
	if len(refs) == 0 {
		return -1, false
	}
	attrs := make(map[string]string, len(refs))
	for _, ref := range refs {
		attrs[ref.Name] = ref.Value
	}
	docs := stickybucket.GetAllAssignments(context.Background(), c.sticky, attrs)
	merged := stickybucket.Merge(docs, refs)

	// Any assignment recorded under a version below the minimum blocks the
	// user entirely rather than silently re-bucketing them.
	for v := 0; v < exp.MinBucketVersion; v++ {
		if _, ok := merged[stickybucket.AssignmentKey(exp.Key, v)]; ok {
			return -1, true
		}
	}

	variationKey, ok := merged[stickybucket.AssignmentKey(exp.Key, exp.BucketVersion)]
	if !ok {
		return -1, false
	}
	return variationIndexForKey(exp, variationKey), false
}

// variationIndexForKey maps a stored variation key back to an index, or -1
// if the experiment no longer has that variation.
func variationIndexForKey(exp *payload.Experiment, key string) int {
	for i := range exp.Variations {
		k := strconv.Itoa(i)
		if i < len(exp.Meta) && exp.Meta[i].Key != "" {
			k = exp.Meta[i].Key
		}
		if k == key {
			return i
		}
	}
	return -1
}

// persistStickyAssignment records a fresh assignment under the hash
// attribute's document. Write failures are logged and otherwise ignored.
func (c *Client) persistStickyAssignment(exp *payload.Experiment, attrName, hashValue string, result *Result) {
	if hashValue == "" {
		return
	}
	ctx := context.Background()
	assignmentKey := stickybucket.AssignmentKey(exp.Key, exp.BucketVersion)

	doc, err := c.sticky.GetAssignments(ctx, attrName, hashValue)
	if err != nil {
		c.log.Warn().Err(err).Str("experiment", exp.Key).Msg("sticky bucket read failed")
		return
	}
	if doc == nil {
		doc = &stickybucket.AssignmentsDocument{
			AttributeName:  attrName,
			AttributeValue: hashValue,
			Assignments:    map[string]string{},
		}
	}
	if doc.Assignments == nil {
		doc.Assignments = map[string]string{}
	}
	if doc.Assignments[assignmentKey] == result.Key {
		return
	}
	doc.Assignments[assignmentKey] = result.Key

	if err := c.sticky.SaveAssignments(ctx, doc); err != nil {
		c.log.Warn().Err(err).Str("experiment", exp.Key).Msg("sticky bucket write failed")
	}
}
