package model

import "time"

// TargetKind は投票対象の種別を表す。
type TargetKind string

const (
	// TargetQuestion は質問への投票。
	TargetQuestion TargetKind = "question"
	// TargetAnswer は回答への投票。
	TargetAnswer TargetKind = "answer"
)

// Valid は定義済みの対象種別かどうかを返す。
func (k TargetKind) Valid() bool {
	return k == TargetQuestion || k == TargetAnswer
}

// VoteDirection は投票の方向を表す。
type VoteDirection string

const (
	// VoteUp はupvote。
	VoteUp VoteDirection = "upvote"
	// VoteDown はdownvote。
	VoteDown VoteDirection = "downvote"
)

// Valid は定義済みの投票方向かどうかを返す。
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// VoteTarget は投票対象のIDと種別の組。
type VoteTarget struct {
	TargetID   string
	TargetKind TargetKind
}

// HasVoted はログインユーザーの投票状況を表す。
type HasVoted struct {
	HasUpvoted   bool `json:"hasUpvoted"`
	HasDownvoted bool `json:"hasDownvoted"`
}

// VoteState は投票ウィジェットに渡す表示用スナップショット。
// HasVotedがnilの場合は両フラグともfalseとして扱う。
type VoteState struct {
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	HasVoted  *HasVoted `json:"hasVoted"`
}

// Upvoted はupvote済みかどうかを返す。
func (s VoteState) Upvoted() bool {
	return s.HasVoted != nil && s.HasVoted.HasUpvoted
}

// Downvoted はdownvote済みかどうかを返す。
func (s VoteState) Downvoted() bool {
	return s.HasVoted != nil && s.HasVoted.HasDownvoted
}

// Vote は永続化された投票を表す。1ユーザー・1対象につき最大1件。
type Vote struct {
	ID         string
	AuthorID   string
	TargetID   string
	TargetKind TargetKind
	Direction  VoteDirection
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VoteChangeKind は投票リクエストにより発生する変化の種別。
type VoteChangeKind string

const (
	// VoteCreated は新規投票。
	VoteCreated VoteChangeKind = "created"
	// VoteRemoved は同方向の再投票による取り消し。
	VoteRemoved VoteChangeKind = "removed"
	// VoteSwitched は逆方向への切り替え。
	VoteSwitched VoteChangeKind = "switched"
)

// VoteChange は投票リクエストの適用結果。カウンタの増減量を含む。
type VoteChange struct {
	Kind           VoteChangeKind
	UpvoteDelta    int
	DownvoteDelta  int
	FinalDirection *VoteDirection
}

// ResolveVote は既存の投票と要求された方向から適用すべき変化を決定する。
// 同方向ならトグルで取り消し、逆方向なら切り替え、未投票なら新規作成となる。
func ResolveVote(existing *VoteDirection, requested VoteDirection) VoteChange {
	delta := func(d VoteDirection, n int) (int, int) {
		if d == VoteUp {
			return n, 0
		}
		return 0, n
	}

	switch {
	case existing == nil:
		up, down := delta(requested, 1)
		dir := requested
		return VoteChange{Kind: VoteCreated, UpvoteDelta: up, DownvoteDelta: down, FinalDirection: &dir}
	case *existing == requested:
		up, down := delta(requested, -1)
		return VoteChange{Kind: VoteRemoved, UpvoteDelta: up, DownvoteDelta: down}
	default:
		oldUp, oldDown := delta(*existing, -1)
		newUp, newDown := delta(requested, 1)
		dir := requested
		return VoteChange{
			Kind:           VoteSwitched,
			UpvoteDelta:    oldUp + newUp,
			DownvoteDelta:  oldDown + newDown,
			FinalDirection: &dir,
		}
	}
}
