package mention

import "mention-bot/internal/message"

// Options 改写选项
type Options struct {
	// ZeroWidthGuard 在每个 @ 两侧插入零宽空格，防止部分客户端把 @ 和相邻文字连在一起显示
	ZeroWidthGuard bool
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{ZeroWidthGuard: true}
}

// Stats 一次改写的统计
type Stats struct {
	Mentions int // 转换出的 @ 数量
	Noise    int // 被移除的疑似标签数量
}

// Rewrite 把消息链中文本段里的合法标签转换为 @ 段，并移除格式错误的疑似标签
func Rewrite(chain message.Chain, g *Grammar, opts Options) message.Chain {
	out, _ := RewriteStats(chain, g, opts)
	return out
}

// RewriteStats 同 Rewrite，额外返回统计信息
// 纯函数：不修改输入，不访问外部资源
func RewriteStats(chain message.Chain, g *Grammar, opts Options) (message.Chain, Stats) {
	var stats Stats
	if !hasCandidate(chain, g) {
		return chain, stats
	}

	out := make(message.Chain, 0, len(chain)+4)
	for _, seg := range chain {
		if !seg.IsText() || !g.MayContain(seg.Text) {
			out = append(out, seg)
			continue
		}

		text := seg.Text
		last := 0
		for _, m := range g.FindAll(text) {
			out = appendCleaned(out, text[last:m.Start], g, &stats)
			if opts.ZeroWidthGuard {
				out = append(out, message.Text(message.ZeroWidthSpace))
			}
			out = append(out, message.Mention(m.UserID))
			if opts.ZeroWidthGuard {
				out = append(out, message.Text(message.ZeroWidthSpace))
			}
			stats.Mentions++
			last = m.End
		}
		out = appendCleaned(out, text[last:], g, &stats)
	}
	return out, stats
}

// RewriteText 改写一段纯文本
func RewriteText(text string, g *Grammar, opts Options) (message.Chain, Stats) {
	return RewriteStats(message.Chain{message.Text(text)}, g, opts)
}

// Strip 移除文本中所有标签（包括合法标签），用于无法发送 @ 的场合
func Strip(text string, g *Grammar) string {
	cleaned, _ := g.Clean(text)
	return cleaned
}

func appendCleaned(out message.Chain, text string, g *Grammar, stats *Stats) message.Chain {
	if text == "" {
		return out
	}
	cleaned, removed := g.Clean(text)
	stats.Noise += removed
	if cleaned == "" {
		return out
	}
	return append(out, message.Text(cleaned))
}

func hasCandidate(chain message.Chain, g *Grammar) bool {
	for _, seg := range chain {
		if seg.IsText() && g.MayContain(seg.Text) {
			return true
		}
	}
	return false
}
