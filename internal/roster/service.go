package roster

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Observer 名单拉取结果的观察者（监控用）
type Observer interface {
	ObserveRosterFetch(result string)
}

// Service 名单查询服务
// 平台只要实现了 Fetcher 就能查询，不关心具体是哪种平台
type Service struct {
	fetcher  Fetcher
	limit    int
	observer Observer
}

// NewService 创建名单查询服务，platform 未实现 Fetcher 时所有查询都返回 platform_unsupported
func NewService(platform interface{}, limit int, observer Observer) *Service {
	s := &Service{limit: limit, observer: observer}
	if f, ok := platform.(Fetcher); ok {
		s.fetcher = f
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	return s
}

// Supported 平台是否支持获取名单
func (s *Service) Supported() bool {
	return s.fetcher != nil
}

// Fetch 拉取名单，错误为 ErrNoGroupContext、ErrPlatformUnsupported 或 *FetchError
func (s *Service) Fetch(ctx context.Context, groupID int64) ([]Entry, error) {
	if groupID == 0 {
		return nil, ErrNoGroupContext
	}
	if s.fetcher == nil {
		s.observe("unsupported")
		return nil, ErrPlatformUnsupported
	}

	entries, err := s.fetcher.FetchRoster(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrPlatformUnsupported) {
			s.observe("unsupported")
			return nil, ErrPlatformUnsupported
		}
		s.observe("error")
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{GroupID: groupID, Err: err}
	}
	s.observe("ok")
	return entries, nil
}

// Lookup 拉取名单并搜索，任何失败都转成结构化结果，不返回 error
func (s *Service) Lookup(ctx context.Context, groupID int64, keyword string, limit int) *Result {
	if limit <= 0 {
		limit = s.limit
	}

	entries, err := s.Fetch(ctx, groupID)
	if err != nil {
		zap.L().Warn("查询群成员失败", zap.Int64("group_id", groupID), zap.String("keyword", keyword), zap.Error(err))
		return FailureResult(keyword, err)
	}

	members, total := search(entries, keyword, limit)
	return Found(keyword, members, total)
}

// FailureResult 把名单错误转换成结构化结果
func FailureResult(keyword string, err error) *Result {
	switch {
	case errors.Is(err, ErrNoGroupContext):
		return Failed(CodeNoGroupContext, keyword, "当前不在群聊中，无法查询群成员")
	case errors.Is(err, ErrPlatformUnsupported):
		return Failed(CodePlatformUnsupported, keyword, "当前平台不支持查询群成员，无法艾特")
	default:
		return Failed(CodeFetchFailed, keyword, "获取群成员列表失败，可以请用户稍后再试或直接说出对方的QQ号")
	}
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveRosterFetch(result)
	}
}
