package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/myuon/audiosink/wavsink"
	"github.com/youpy/go-wav"
	"go.uber.org/zap"
)

// transcribeFile streams the data chunk of a finalized 16-bit capture to
// Cloud Speech-to-Text and writes each result to out.
func transcribeFile(ctx context.Context, path, language string, out io.Writer, logger *zap.Logger) error {
	info, err := wavsink.Inspect(path)
	if err != nil {
		return err
	}
	if !info.Finalized {
		return fmt.Errorf("%s is not finalized", path)
	}
	if info.BitsPerSample != 16 {
		return fmt.Errorf("%s: speech recognition needs 16-bit PCM, file has %d-bit", path, info.BitsPerSample)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	reader := wav.NewReader(f)

	client, err := speech.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("speech client: %w", err)
	}
	defer client.Close()

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("streaming recognize: %w", err)
	}
	// Send the initial configuration message.
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:          speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:   int32(info.SampleRate),
					AudioChannelCount: int32(info.Channels),
					LanguageCode:      language,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("send config: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- sendAudio(stream, reader)
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			logger.Debug("end of recognition stream")
			break
		}
		if err != nil {
			return fmt.Errorf("receive results: %w", err)
		}
		if st := resp.GetError(); st != nil {
			return fmt.Errorf("recognition failed: %s", st.GetMessage())
		}
		for _, result := range resp.GetResults() {
			if alts := result.GetAlternatives(); len(alts) > 0 {
				fmt.Fprintf(out, "%s\t%.2f\n", alts[0].GetTranscript(), alts[0].GetConfidence())
			}
		}
	}
	return <-sendErr
}

// sendAudio pipes the data chunk to the stream and closes the send side.
func sendAudio(stream speechpb.Speech_StreamingRecognizeClient, r io.Reader) error {
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if err := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: buf[:n],
				},
			}); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
		if errors.Is(err, io.EOF) {
			// Nothing else to pipe, close the stream.
			return stream.CloseSend()
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}
