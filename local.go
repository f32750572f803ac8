package apihub

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdaSdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/joho/godotenv"
)

func IsLambda() bool {
	return os.Getenv("LAMBDA_TASK_ROOT") != ""
}

const (
	envKeyDebugPort    = "LAMBDA_DEBUG_PORT"
	envKeyFunctionName = "LAMBDA_FUNCTION_NAME"
)

// FunctionEnvAPI is the part of the Lambda client used to copy a deployed
// function's environment.
type FunctionEnvAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambdaSdk.GetFunctionConfigurationInput, optFns ...func(*lambdaSdk.Options)) (*lambdaSdk.GetFunctionConfigurationOutput, error)
}

func startLambdaLocally[T any, U any](ctx context.Context, cfg aws.Config, b *Builder[T, U]) {
	errLog := log.New(os.Stderr, "", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		errLog.Printf("unable to read .env file: %s", err.Error())
	}

	fmt.Println("Running lambda locally - need to load environment variables from AWS")
	funcName := getLambdaFunctionName()

	if funcName != "" {
		fmt.Printf("Loading environment variables from lambda: %s\n", funcName)
		err := loadFunctionEnv(ctx, lambdaSdk.NewFromConfig(cfg), funcName)
		if err != nil {
			errLog.Printf("unable to read environment vars for lambda function %s: %s", funcName, err.Error())
			errLog.Println("Ensure the AWS_PROFILE is set in the run configuration")
			os.Exit(1)
		}
	} else {
		fmt.Println("No function name provided - any environment variables will need to be manually set")
	}

	hub := b.hub()
	handlerFn := b.getHandler(cfg, hub)
	addr := ":" + hub.Settings().DebugPort

	mux := http.NewServeMux()
	mux.HandleFunc("/", buildHandleRoot(addr))
	mux.HandleFunc("/endpoint", buildHandleLocalEndpoint(handlerFn))

	fmt.Printf("Starting server http://localhost%s\n", addr)
	fmt.Printf("POST requests to http://localhost%s/endpoint using command:\n\n", addr)
	fmt.Printf("curl -X POST -H 'Content-Type: application/json' -d @payload.json http://localhost%s/endpoint\n", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	err := server.ListenAndServe()
	if err != nil {
		var bindErr *net.OpError
		if errors.As(err, &bindErr) && strings.Contains(bindErr.Error(), "address already in use") {
			portOnly := strings.Replace(addr, ":", "", 1)
			err = fmt.Errorf("the port %s is already in use. Set the %s environment variable to use a different port", portOnly, envKeyDebugPort)
		}
		panic(err)
	}
}

// loadFunctionEnv copies the deployed function's environment variables
// into the process environment. Variables already set locally win.
func loadFunctionEnv(ctx context.Context, client FunctionEnvAPI, funcName string) error {
	res, err := client.GetFunctionConfiguration(ctx, &lambdaSdk.GetFunctionConfigurationInput{
		FunctionName: aws.String(funcName),
	})
	if err != nil {
		return err
	}
	if res.Environment == nil {
		return nil
	}
	for k, v := range res.Environment.Variables {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

func buildHandleRoot(addr string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			"Save the JSON payload to a file - e.g. payload.json",
			fmt.Sprintf("curl -X POST -H \"Content-Type: application/json\" -d @payload.json http://localhost%s/endpoint", addr),
		}

		_, wErr := w.Write([]byte(strings.Join(lines, "\n\n")))
		if wErr != nil {
			logger := log.New(os.Stderr, "", 0)
			logger.Println(wErr)
		}
	}
}

func buildHandleLocalEndpoint[T any, U any](handler Handler[T, U]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		handleError := func(err error) {
			w.WriteHeader(http.StatusInternalServerError)
			_, wErr := w.Write([]byte(err.Error()))
			if wErr != nil {
				logger := log.New(os.Stderr, "", 0)
				logger.Println(wErr)
			}
		}

		bytes, err := io.ReadAll(r.Body)
		if err != nil {
			handleError(err)
			return
		}

		var input T
		err = json.Unmarshal(bytes, &input)
		if err != nil {
			handleError(err)
			return
		}

		// the SQS processor requires a deadline
		ctx, cancel := context.WithDeadline(r.Context(), time.Now().Add(1*time.Hour))
		defer cancel()

		res, err := handler(ctx, input)
		if err != nil {
			handleError(err)
			return
		}

		outputBytes, err := json.Marshal(res)
		if err != nil {
			handleError(err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, wErr := w.Write(outputBytes)
		if wErr != nil {
			logger := log.New(os.Stderr, "", 0)
			logger.Println(wErr)
		}
	}
}

func getLambdaFunctionName() string {
	trimAndRemoveLogPrefix := func(s string) string {
		return strings.TrimPrefix(strings.TrimSpace(s), "/aws/lambda/")
	}

	envFuncName := os.Getenv(envKeyFunctionName)
	if envFuncName != "" {
		return trimAndRemoveLogPrefix(envFuncName)
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Enter lambda function name, log group name (or re-run with env var %s set): ", envKeyFunctionName)
	text, _ := reader.ReadString('\n')

	return trimAndRemoveLogPrefix(text)
}
