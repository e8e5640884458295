package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/crosspost-earnings/internal/engine"
	svcErr "github.com/oggyb/crosspost-earnings/internal/errors"
	"github.com/oggyb/crosspost-earnings/internal/ingest"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "crosspost.earnings.v1.EarningsService"

// EarningsServiceServer is the server API. Requests and responses are
// google.protobuf.Struct documents; money values travel as fixed two-decimal strings.
type EarningsServiceServer interface {
	ListPairedRows(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEarnings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetIrrelevant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertVideos(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkCyclePaid(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnmarkCyclePaid(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecalculateCycle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCycleEarnings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdatePayConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type serverCall func(EarningsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call serverCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EarningsServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EarningsServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var earningsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EarningsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListPairedRows", EarningsServiceServer.ListPairedRows),
		unary("GetEarnings", EarningsServiceServer.GetEarnings),
		unary("SetIrrelevant", EarningsServiceServer.SetIrrelevant),
		unary("UpsertVideos", EarningsServiceServer.UpsertVideos),
		unary("MarkCyclePaid", EarningsServiceServer.MarkCyclePaid),
		unary("UnmarkCyclePaid", EarningsServiceServer.UnmarkCyclePaid),
		unary("RecalculateCycle", EarningsServiceServer.RecalculateCycle),
		unary("GetCycleEarnings", EarningsServiceServer.GetCycleEarnings),
		unary("UpdatePayConfig", EarningsServiceServer.UpdatePayConfig),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crosspost/earnings/v1/earnings.proto",
}

// RegisterEarningsServiceServer attaches srv to s.
func RegisterEarningsServiceServer(s grpc.ServiceRegistrar, srv EarningsServiceServer) {
	s.RegisterService(&earningsServiceDesc, srv)
}

// grpcHandler translates Struct requests into Service calls.
type grpcHandler struct {
	svc *Service
}

var _ EarningsServiceServer = (*grpcHandler)(nil)

func (h *grpcHandler) ListPairedRows(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	bucket, ok := ParseBucket(stringField(req, "bucket"))
	if !ok {
		return nil, svcErr.InvalidArgument("bucket must be one of current, pre_cycle, past, all")
	}
	page, err := h.svc.ListPairedRows(ctx,
		stringField(req, "creator_id"), bucket,
		stringField(req, "page_token"), int(numberField(req, "limit")),
	)
	if err != nil {
		return nil, err
	}

	rows := make([]any, 0, len(page.Rows))
	for _, r := range page.Rows {
		rows = append(rows, rowToMap(r))
	}
	return newStruct(map[string]any{
		"rows":            rows,
		"totals":          totalsToMap(page.Totals),
		"next_page_token": page.NextPageToken,
	})
}

func (h *grpcHandler) GetEarnings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sum, err := h.svc.GetEarnings(ctx, stringField(req, "creator_id"))
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]any{
		"creator_id": sum.CreatorID,
		"cycle_id":   sum.CycleID,
		"current":    totalsToMap(sum.Current),
		"pre_cycle":  totalsToMap(sum.PreCycle),
		"past":       totalsToMap(sum.Past),
	})
}

func (h *grpcHandler) SetIrrelevant(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	videoID := stringField(req, "video_id")
	irrelevant := boolField(req, "irrelevant")
	if err := h.svc.SetIrrelevant(ctx, videoID, irrelevant); err != nil {
		return nil, err
	}
	return newStruct(map[string]any{"video_id": videoID, "irrelevant": irrelevant})
}

func (h *grpcHandler) UpsertVideos(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var raws []ingest.RawVideo
	if list := req.GetFields()["videos"].GetListValue(); list != nil {
		b, err := list.MarshalJSON()
		if err != nil {
			return nil, svcErr.InvalidArgument("videos must be a list of objects")
		}
		if err := json.Unmarshal(b, &raws); err != nil {
			return nil, svcErr.InvalidArgument("videos: " + err.Error())
		}
	}
	n, err := h.svc.UpsertVideos(ctx, raws)
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]any{"upserted": n})
}

func (h *grpcHandler) MarkCyclePaid(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.svc.MarkCyclePaid(ctx, stringField(req, "cycle_id"))
	if err != nil {
		return nil, err
	}
	return newStruct(cycleToMap(*c))
}

func (h *grpcHandler) UnmarkCyclePaid(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := h.svc.UnmarkCyclePaid(ctx, stringField(req, "cycle_id"))
	if err != nil {
		return nil, err
	}
	return newStruct(cycleToMap(*c))
}

func (h *grpcHandler) RecalculateCycle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.svc.RecalculateCycle(ctx, stringField(req, "cycle_id"))
	if err != nil {
		return nil, err
	}
	return newStruct(resultToMap(*res))
}

func (h *grpcHandler) GetCycleEarnings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ce, err := h.svc.GetCycleEarnings(ctx, stringField(req, "creator_id"), stringField(req, "cycle_id"))
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]any{
		"cycle_id":      ce.CycleID,
		"creator_id":    ce.CreatorID,
		"frozen":        ce.Frozen,
		"from_snapshot": ce.FromSnapshot,
		"verified":      ce.Verified,
		"totals":        totalsToMap(ce.Totals),
	})
}

func (h *grpcHandler) UpdatePayConfig(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	igBase, err := decimalValue(req.GetFields()["instagram_base_pay"])
	if err != nil {
		return nil, svcErr.InvalidArgument("instagram_base_pay: " + err.Error())
	}
	ttBase, err := decimalValue(req.GetFields()["tiktok_base_pay"])
	if err != nil {
		return nil, svcErr.InvalidArgument("tiktok_base_pay: " + err.Error())
	}

	var tiers []engine.BonusTier
	for i, v := range req.GetFields()["tiers"].GetListValue().GetValues() {
		t := v.GetStructValue()
		if t == nil {
			return nil, svcErr.InvalidArgument(fmt.Sprintf("tiers[%d] must be an object", i))
		}
		amount, err := decimalValue(t.GetFields()["bonus_amount"])
		if err != nil {
			return nil, svcErr.InvalidArgument(fmt.Sprintf("tiers[%d].bonus_amount: %v", i, err))
		}
		tiers = append(tiers, engine.BonusTier{
			ViewThreshold: int64(numberField(t, "view_threshold")),
			BonusAmount:   amount,
		})
	}

	settings := engine.PayoutSettings{InstagramBasePay: igBase, TikTokBasePay: ttBase}
	if err := h.svc.UpdatePayConfig(ctx, settings, tiers); err != nil {
		return nil, err
	}

	outTiers := make([]any, 0, len(tiers))
	for _, t := range tiers {
		outTiers = append(outTiers, map[string]any{
			"view_threshold": t.ViewThreshold,
			"bonus_amount":   money(t.BonusAmount),
		})
	}
	return newStruct(map[string]any{
		"instagram_base_pay": money(igBase),
		"tiktok_base_pay":    money(ttBase),
		"tiers":              outTiers,
	})
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// decimalValue accepts money as a string ("2.50") or a plain number.
func decimalValue(v *structpb.Value) (decimal.Decimal, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(k.StringValue)
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	}
	return decimal.Zero, fmt.Errorf("expected a decimal string or number")
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func totalsToMap(t engine.Totals) map[string]any {
	return map[string]any{
		"base_pay": money(t.BasePay),
		"bonus":    money(t.Bonus),
		"total":    money(t.Total),
	}
}

func videoToMap(v *engine.Video, eligible bool) map[string]any {
	m := map[string]any{
		"id":                v.ID,
		"platform":          string(v.Platform),
		"platform_video_id": v.PlatformVideoID,
		"caption":           v.Caption,
		"timestamp":         formatTime(v.TimestampUTC),
		"views":             v.Views,
		"likes":             v.Likes,
		"comments":          v.Comments,
		"is_irrelevant":     v.IsIrrelevant,
		"eligible":          eligible,
		"thumbnail_hash":    v.ThumbnailHash,
	}
	if v.DurationSeconds != nil {
		m["duration_seconds"] = *v.DurationSeconds
	}
	return m
}

func rowToMap(r RowView) map[string]any {
	m := map[string]any{
		"id":         r.Row.ID,
		"date":       formatTime(r.Row.Date),
		"caption":    r.Row.Caption,
		"match_type": string(r.Row.MatchType),
		"paired":     r.Row.Paired(),
		"base_pay":   money(r.Earnings.BasePay()),
		"bonus":      money(r.Earnings.Bonus()),
		"total":      money(r.Earnings.Total),
	}
	if w := r.Resolution.Winner; w != nil {
		m["winner_platform"] = string(*w)
	}
	if r.Row.IG != nil {
		m["instagram"] = videoToMap(r.Row.IG, r.Resolution.IGEligible)
	}
	if r.Row.TikTok != nil {
		m["tiktok"] = videoToMap(r.Row.TikTok, r.Resolution.TTEligible)
	}
	return m
}

func cycleToMap(c engine.PayoutCycle) map[string]any {
	m := map[string]any{
		"id":         c.ID,
		"start_date": formatTime(c.StartDate),
		"end_date":   formatTime(c.EndDate),
		"frozen":     c.Frozen(),
	}
	if c.PaidAt != nil {
		m["paid_at"] = formatTime(*c.PaidAt)
	}
	return m
}

func resultToMap(r recalc.Result) map[string]any {
	ids := make([]string, 0, len(r.Totals))
	for id := range r.Totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	creators := make([]any, 0, len(ids))
	for _, id := range ids {
		t := totalsToMap(r.Totals[id])
		t["creator_id"] = id
		creators = append(creators, t)
	}
	return map[string]any{
		"cycle_id":    r.CycleID,
		"was_frozen":  r.WasFrozen,
		"creators":    creators,
		"refreshed":   r.Refreshed,
		"snapshotted": r.Snapshotted,
		"skipped":     r.Skipped,
	}
}
