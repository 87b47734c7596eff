// Package httpclient builds the requests the load probe sends and the pooled
// client that sends them.
//
//	builder, err := httpclient.NewRequestBuilder(target, cfg.Load.Method, cfg.Load.Headers)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// Every Build call returns an independent request, so one builder can serve
// many workers.
package httpclient
