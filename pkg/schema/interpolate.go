package schema

// Mapped returns a copy of the step with f applied to every user-supplied
// payload string: URLs, selectors, values, scripts, paths, and assertion
// operands. Nested step lists (then/else/try/catch/each/repeat/modal bodies)
// are carried over untouched: each nested step is interpolated against the
// live Variable Table at its own dispatch, so values stored by an earlier
// eval remain visible to later iterations. The receiver is not modified.
func (s Step) Mapped(f func(string) string) Step {
	out := s
	if s.Goto != nil {
		g := *s.Goto
		g.URL = f(g.URL)
		out.Goto = &g
	}
	if s.Click != nil {
		c := *s.Click
		c.Selector = f(c.Selector)
		c.Role = f(c.Role)
		c.Text = f(c.Text)
		out.Click = &c
	}
	if s.Fill != nil {
		fl := *s.Fill
		fl.Selector = f(fl.Selector)
		fl.Value = f(fl.Value)
		out.Fill = &fl
	}
	if s.Type != nil {
		t := *s.Type
		t.Selector = f(t.Selector)
		t.Text = f(t.Text)
		out.Type = &t
	}
	if s.Wait != nil {
		w := *s.Wait
		w.Selector = f(w.Selector)
		w.URL = f(w.URL)
		out.Wait = &w
	}
	if s.Screenshot != nil {
		sh := *s.Screenshot
		sh.Path = f(sh.Path)
		out.Screenshot = &sh
	}
	if s.Eval != nil {
		e := *s.Eval
		e.Script = f(e.Script)
		out.Eval = &e
	}
	if s.Login != nil {
		l := *s.Login
		l.URL = f(l.URL)
		l.Username = f(l.Username)
		l.Password = f(l.Password)
		l.UsernameSelector = f(l.UsernameSelector)
		l.PasswordSelector = f(l.PasswordSelector)
		l.SubmitSelector = f(l.SubmitSelector)
		l.SuccessURL = f(l.SuccessURL)
		out.Login = &l
	}
	if s.FillForm != nil {
		ff := FillFormStep{Submit: f(s.FillForm.Submit)}
		if s.FillForm.Fields != nil {
			ff.Fields = make(map[string]string, len(s.FillForm.Fields))
			for k, v := range s.FillForm.Fields {
				ff.Fields[f(k)] = f(v)
			}
		}
		out.FillForm = &ff
	}
	if s.Modal != nil {
		m := *s.Modal
		m.Open = f(m.Open)
		m.Close = f(m.Close)
		out.Modal = &m
	}
	if s.Responsive != nil {
		r := ResponsiveStep{Path: f(s.Responsive.Path), FullPage: s.Responsive.FullPage}
		if s.Responsive.Viewports != nil {
			r.Viewports = make([]string, len(s.Responsive.Viewports))
			for i, v := range s.Responsive.Viewports {
				r.Viewports[i] = f(v)
			}
		}
		out.Responsive = &r
	}
	if s.If != nil {
		c := *s.If
		c.Exists = f(c.Exists)
		c.URL = f(c.URL)
		// Expr reads the table directly, not via {{}} placeholders.
		out.If = &c
	}
	if s.Each != nil {
		e := *s.Each
		e.Selector = f(e.Selector)
		out.Each = &e
	}
	if s.Repeat != nil {
		r := *s.Repeat
		out.Repeat = &r
	}
	if s.Assert != nil {
		out.Assert = make([]Assertion, len(s.Assert))
		for i, a := range s.Assert {
			out.Assert[i] = a.mapped(f)
		}
	}
	return out
}

func (a Assertion) mapped(f func(string) string) Assertion {
	out := a
	out.Title = f(a.Title)
	out.TitleContains = f(a.TitleContains)
	out.URL = f(a.URL)
	out.Visible = f(a.Visible)
	out.Hidden = f(a.Hidden)
	out.Exists = f(a.Exists)
	if a.Text != nil {
		t := *a.Text
		t.Selector = f(t.Selector)
		t.Contains = f(t.Contains)
		t.Equals = f(t.Equals)
		out.Text = &t
	}
	if a.Count != nil {
		c := *a.Count
		c.Selector = f(c.Selector)
		out.Count = &c
	}
	return out
}
