// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/geoassist/assist"
	"github.com/jcodagnone/geoassist/form"
	"github.com/spf13/cobra"
)

type bindFlags struct {
	OptionsFile string
	Element     string
	Address     string
	Set         []string
	SubmitTo    string
	Timeout     time.Duration
}

var bindOptions = &bindFlags{}

func loadDocument(ctx context.Context, source string) (*form.Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client, err := providerOptions.httpClient()
		if err != nil {
			return nil, err
		}

		return form.Fetch(ctx, client, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening form: %w", err)
	}
	defer f.Close()

	return form.Parse(f)
}

func loadBindOptions(path string) (assist.Options, error) {
	if path == "" {
		return assist.Options{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return assist.Options{}, fmt.Errorf("opening options: %w", err)
	}
	defer f.Close()

	return assist.LoadOptions(f)
}

func typeInto(ctx context.Context, doc *form.Document, scope *form.Scope, selector, value string) error {
	sel, err := form.Compile(selector)
	if err != nil {
		return err
	}

	nodes := scope.Find(sel)
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", form.ErrNotFound, selector)
	}

	doc.SetValue(nodes[0], value)

	for _, typ := range []form.EventType{form.Input, form.Change} {
		if _, err := doc.Dispatch(ctx, nodes[0], typ); err != nil {
			return err
		}
	}

	return nil
}

var bindCmd = &cobra.Command{
	Use:   "bind <form.html|url>",
	Short: "Bind a form, fill its address and submit it once resolved",
	Long: `Parses a form, binds its address field, types the given values, submits the
form and waits for the submit to be released. The resulting HTML is printed
on stdout.

$ geoassist bind form.html --options geoassist.yaml --address "Av. 18 de Julio 1234, Montevideo"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, err := loadDocument(ctx, args[0])
		if err != nil {
			return err
		}

		opts, err := loadBindOptions(bindOptions.OptionsFile)
		if err != nil {
			return err
		}

		recorder := &form.Recorder{}
		doc.SetSubmitter(recorder)

		if bindOptions.SubmitTo != "" {
			base, err := url.Parse(bindOptions.SubmitTo)
			if err != nil {
				return fmt.Errorf("parsing submit url: %w", err)
			}

			client, err := providerOptions.httpClient()
			if err != nil {
				return err
			}

			remote := &form.HTTPSubmitter{Client: client, Base: base}
			doc.SetSubmitter(form.SubmitterFunc(func(ctx context.Context, s form.Submission) error {
				if err := recorder.Submit(ctx, s); err != nil {
					return err
				}

				return remote.Submit(ctx, s)
			}))
		}

		element, err := doc.Find(bindOptions.Element)
		if err != nil {
			return err
		}

		provider, closeFn, err := providerOptions.build(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		binder := assist.NewBinder(assist.WithContext(ctx))
		defer binder.Close()

		c, err := binder.Bind(doc, element, opts, provider)
		if err != nil {
			return err
		}

		scope := c.Scope()

		for _, kv := range bindOptions.Set {
			selector, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --set %q, expected selector=value", kv)
			}

			if err := typeInto(ctx, doc, scope, selector, value); err != nil {
				return err
			}
		}

		if bindOptions.Address != "" {
			doc.SetValue(element, bindOptions.Address)

			if _, err := doc.Dispatch(ctx, element, form.Input); err != nil {
				return err
			}
		}

		ev, err := doc.Dispatch(ctx, scope.Root(), form.Submit)
		if err != nil {
			return fmt.Errorf("submitting form: %w", err)
		}

		if ev.DefaultPrevented() {
			log.Printf("Submit held until the address is resolved")
		}

		waitCtx, cancel := context.WithTimeout(ctx, bindOptions.Timeout)
		defer cancel()

		state, err := c.Wait(waitCtx)
		if err != nil {
			return fmt.Errorf("waiting for resolution: %w", err)
		}

		if _, geoErr := c.LastResult(); geoErr != nil {
			log.Printf("Resolution failed: %v", geoErr)
		}

		log.Printf("Resolved: %t, submit pending: %t, submissions: %d",
			state.LocationResolved, state.SubmitPending, recorder.Count())

		return doc.Render(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(bindCmd)
	bindCmd.Flags().StringVar(&bindOptions.OptionsFile, "options", "", "YAML file with the binding options")
	bindCmd.Flags().StringVar(&bindOptions.Element, "element", ".address", "Selector of the bound element")
	bindCmd.Flags().StringVar(&bindOptions.Address, "address", "", "Value typed into the bound element")
	bindCmd.Flags().StringArrayVar(&bindOptions.Set, "set", nil, "selector=value typed into a field before submitting (repeatable)")
	bindCmd.Flags().StringVar(&bindOptions.SubmitTo, "submit-to", "", "Base URL the form is submitted to; submissions are only recorded when empty")
	bindCmd.Flags().DurationVar(&bindOptions.Timeout, "timeout", 30*time.Second, "Maximum time to wait for the resolution")
}
