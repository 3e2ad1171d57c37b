package main

import (
	"context"

	"github.com/chatbroker/chatbroker/pkg/chatlog"
	"github.com/chatbroker/chatbroker/pkg/coordinator"
	"github.com/chatbroker/chatbroker/pkg/knowledge"
)

// chatlogAdapter satisfies coordinator.MessageLog against
// chatlog.Store, translating coordinator's role type to chatlog's.
type chatlogAdapter struct {
	store *chatlog.Store
}

func (a chatlogAdapter) Log(ctx context.Context, role coordinator.MessageRole, lang, content, cid string) error {
	return a.store.Log(ctx, chatlog.Role(role), lang, content, cid)
}

// knowledgeAdapter satisfies coordinator.KnowledgeStore against
// knowledge.Store, narrowing knowledge.Match down to the single field
// the coordinator actually consults.
type knowledgeAdapter struct {
	store *knowledge.Store
}

func (a knowledgeAdapter) RetrieveBest(ctx context.Context, sourceLangQuery, chineseQuery string, k int) (*coordinator.KnowledgeMatch, error) {
	match, err := a.store.RetrieveBest(ctx, sourceLangQuery, chineseQuery, k)
	if err != nil || match == nil {
		return nil, err
	}
	return &coordinator.KnowledgeMatch{ChineseAnswer: match.ChineseAnswer}, nil
}

func (a knowledgeAdapter) UpsertQA(ctx context.Context, sourceLangQuestion, chineseQuestion, chineseAnswer, source string) (int64, bool, error) {
	return a.store.UpsertQA(ctx, sourceLangQuestion, chineseQuestion, chineseAnswer, source)
}
