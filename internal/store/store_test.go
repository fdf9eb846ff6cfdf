package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// dryRunStore 只生成 SQL 不连接数据库
// 写操作默认会开事务，事务需要真实连接，所以要关掉
func dryRunStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pw@tcp(127.0.0.1:1)/test",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, SkipDefaultTransaction: true})
	require.NoError(t, err)
	return New(db), db
}

func TestSaveReplyBuildsInsert(t *testing.T) {
	_, db := dryRunStore(t)

	stmt := db.Create(&ReplyLog{RequestID: "r1", GroupID: 42, Mentions: JoinIDs([]string{"1001", "1002"})}).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "INSERT INTO `reply_logs`")
	assert.Contains(t, stmt.Vars, "1001,1002")
}

func TestSaveAndListInDryRun(t *testing.T) {
	s, _ := dryRunStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveReply(ctx, &ReplyLog{RequestID: "r1", GroupID: 42}))

	items, total, err := s.ListReplies(ctx, 42, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestNormalizePage(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{2, 500, 2, 100},
	}
	for _, tc := range cases {
		p, s := NormalizePage(tc.page, tc.size)
		assert.Equal(t, tc.wantPage, p)
		assert.Equal(t, tc.wantSize, s)
	}
}
