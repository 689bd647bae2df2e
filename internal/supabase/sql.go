package supabase

// SetupSQL creates the tables this tool owns. Printed by the migrate
// command for execution in the Supabase SQL editor, or applied
// directly with --apply. The synced table itself (weight_logs by
// default) is owned by the application schema, not by this tool.
const SetupSQL = `-- user_mappings links Airtable email identities to auth identities
CREATE TABLE IF NOT EXISTS public.user_mappings (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    airtable_email TEXT NOT NULL,
    auth_email TEXT NOT NULL,
    auto_matched BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE(airtable_email, auth_email)
);

CREATE INDEX IF NOT EXISTS idx_user_mappings_airtable_email
ON public.user_mappings(airtable_email);

CREATE INDEX IF NOT EXISTS idx_user_mappings_auth_email
ON public.user_mappings(auth_email);

ALTER TABLE public.user_mappings ENABLE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS "Users can read their own mappings" ON public.user_mappings;
CREATE POLICY "Users can read their own mappings"
ON public.user_mappings FOR SELECT
USING (auth.uid() IN (
    SELECT id FROM auth.users
    WHERE email = auth_email
));

DROP POLICY IF EXISTS "Service role can manage all mappings" ON public.user_mappings;
CREATE POLICY "Service role can manage all mappings"
ON public.user_mappings
USING (auth.role() = 'service_role');

-- sync_metadata holds one watermark row per synced table
CREATE TABLE IF NOT EXISTS public.sync_metadata (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    table_name TEXT UNIQUE NOT NULL,
    last_sync TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

ALTER TABLE public.sync_metadata ENABLE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS "Service role can manage sync metadata" ON public.sync_metadata;
CREATE POLICY "Service role can manage sync metadata"
ON public.sync_metadata
USING (auth.role() = 'service_role');
`
